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

package strategy_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arqtic/cgiserver/internal/listener"
	"github.com/arqtic/cgiserver/internal/resources"
	"github.com/arqtic/cgiserver/internal/srvlog"
	"github.com/arqtic/cgiserver/internal/strategy"
)

func testLog(t *testing.T) *srvlog.Logger {
	t.Helper()
	log, err := srvlog.Open(t.TempDir() + "/log")
	if err != nil {
		t.Fatalf("srvlog.Open: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func dialN(t *testing.T, addr string, n int) {
	t.Helper()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
			if err != nil {
				t.Errorf("Dial: %v", err)
				return
			}
			conn.Close()
		}()
	}
	wg.Wait()
}

// TestIterativeHandlesConnectionsSequentially drives spec.md §4.2's
// single-threaded accept loop and checks every dialed connection is
// eventually handled exactly once.
func TestIterativeHandlesConnectionsSequentially(t *testing.T) {
	log := testLog(t)
	ln, err := listener.Open(51201, log)
	if err != nil {
		t.Fatalf("listener.Open: %v", err)
	}
	defer ln.Close()

	var handled int32
	s := &strategy.Iterative{
		Listener: ln,
		Handle:   func(c net.Conn) { atomic.AddInt32(&handled, 1); c.Close() },
		Log:      log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	dialN(t, ln.Addr().String(), 3)

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&handled) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&handled); got != 3 {
		t.Fatalf("handled = %d, want 3", got)
	}

	cancel()
	ln.Close()
	<-done
}

// TestReactiveBoundsConcurrentHandlers checks BARRIER admission control:
// with max_clients=1 and a handler that blocks until released, a second
// dialed connection must not be handled until the first completes.
func TestReactiveBoundsConcurrentHandlers(t *testing.T) {
	log := testLog(t)
	ln, err := listener.Open(51202, log)
	if err != nil {
		t.Fatalf("listener.Open: %v", err)
	}
	defer ln.Close()

	pool, err := resources.New(1)
	if err != nil {
		t.Fatalf("resources.New: %v", err)
	}

	release := make(chan struct{})
	var active int32
	var maxActive int32

	s := &strategy.Reactive{
		Listener: ln,
		Pool:     pool,
		Log:      log,
		Handle: func(c net.Conn) {
			defer c.Close()
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&active, -1)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	dialN(t, ln.Addr().String(), 2)
	time.Sleep(200 * time.Millisecond)

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Fatalf("maxActive = %d, want 1 (BARRIER should admit only max_clients=1 at a time)", got)
	}

	close(release)
	time.Sleep(200 * time.Millisecond)

	cancel()
	ln.Close()
	<-done
}

// TestReactiveAdmitsUpToMaxClientsConcurrently checks that, with
// max_clients=2, two simultaneously dialed connections are both inside
// Handle at once rather than serialized one at a time. This is the
// regression test for ACCEPT being released only after the worker
// registers itself (reactive.go's worker), not after Handle returns —
// the latter would cap real concurrency at 1 no matter max_clients.
func TestReactiveAdmitsUpToMaxClientsConcurrently(t *testing.T) {
	log := testLog(t)
	ln, err := listener.Open(51204, log)
	if err != nil {
		t.Fatalf("listener.Open: %v", err)
	}
	defer ln.Close()

	pool, err := resources.New(2)
	if err != nil {
		t.Fatalf("resources.New: %v", err)
	}

	bothActive := make(chan struct{})
	release := make(chan struct{})
	var active int32

	s := &strategy.Reactive{
		Listener: ln,
		Pool:     pool,
		Log:      log,
		Handle: func(c net.Conn) {
			defer c.Close()
			if atomic.AddInt32(&active, 1) == 2 {
				close(bothActive)
			}
			<-release
			atomic.AddInt32(&active, -1)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	dialN(t, ln.Addr().String(), 2)

	select {
	case <-bothActive:
	case <-time.After(2 * time.Second):
		t.Fatalf("only %d handler(s) active concurrently, want 2", atomic.LoadInt32(&active))
	}

	close(release)
	time.Sleep(200 * time.Millisecond)

	cancel()
	ln.Close()
	<-done
}

// TestPoolServesWithFixedWorkerCount checks that a Pool built on a
// max_clients=3 pack handles every one of six dialed connections. It
// does not count the workers or observe them running concurrently.
func TestPoolServesWithFixedWorkerCount(t *testing.T) {
	log := testLog(t)
	ln, err := listener.Open(51203, log)
	if err != nil {
		t.Fatalf("listener.Open: %v", err)
	}
	defer ln.Close()

	pool, err := resources.New(3)
	if err != nil {
		t.Fatalf("resources.New: %v", err)
	}

	var handled int32
	s := &strategy.Pool{
		Listener: ln,
		Res:      pool,
		Log:      log,
		Handle:   func(c net.Conn) { atomic.AddInt32(&handled, 1); c.Close() },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	dialN(t, ln.Addr().String(), 6)

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&handled) < 6 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&handled); got != 6 {
		t.Fatalf("handled = %d, want 6", got)
	}

	ln.Close()
	cancel()
	<-done
}
