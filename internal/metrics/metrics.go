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

// Package metrics exposes Prometheus collectors for the handful of
// counters operators actually want from this server: how many
// connections it has accepted, how many handlers are live right now,
// and how many CGI scripts it has invoked. This is purely additive —
// spec.md's core never reads these values.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arqtic/cgiserver/internal/srvlog"
)

var (
	ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgiserver",
		Name:      "connections_accepted_total",
		Help:      "Total number of client connections accepted by the listener.",
	})

	ActiveHandlers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cgiserver",
		Name:      "active_handlers",
		Help:      "Number of connection handlers currently running.",
	})

	CGIInvocations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgiserver",
		Name:      "cgi_invocations_total",
		Help:      "Total number of CGI script invocations (GET and POST).",
	})
)

// Registry is the collector set Serve exposes on its HTTP /metrics
// endpoint.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(ConnectionsAccepted, ActiveHandlers, CGIInvocations)
}

// Serve exposes Registry on addr at /metrics until ctx is cancelled,
// mirroring the retrieved pack's own prometheus+promhttp exposition
// pattern (a dedicated mux, a server with fixed timeouts, graceful
// Shutdown on context cancellation). A non-empty addr is opt-in: the
// core itself never depends on this endpoint being reachable.
func Serve(ctx context.Context, addr string, log *srvlog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("error shutting down metrics server: %v", err)
		}
	}()

	log.Infof("metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("metrics server failed: %v", err)
	}
}
