/*
 * MIT License
 *
 * Copyright (c) 2024 The cgiserver authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package metrics_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/arqtic/cgiserver/internal/metrics"
	"github.com/arqtic/cgiserver/internal/srvlog"
)

func TestServeExposesMetricsEndpoint(t *testing.T) {
	log, err := srvlog.Open(t.TempDir() + "/metrics.log")
	if err != nil {
		t.Fatalf("srvlog.Open: %v", err)
	}
	defer log.Close()

	metrics.ConnectionsAccepted.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const addr = "127.0.0.1:19091"
	go metrics.Serve(ctx, addr, log)

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "cgiserver_connections_accepted_total") {
		t.Fatalf("metrics output missing expected series:\n%s", body)
	}
}

func TestServeNoopWithEmptyAddr(t *testing.T) {
	log, err := srvlog.Open(t.TempDir() + "/metrics.log")
	if err != nil {
		t.Fatalf("srvlog.Open: %v", err)
	}
	defer log.Close()

	done := make(chan struct{})
	go func() {
		metrics.Serve(context.Background(), "", log)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve with empty addr should return immediately")
	}
}
