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

// Package resources is the bounded-handle resource pack of spec.md §3 and
// §5: the thread/goroutine handle table and the three named semaphores
// (MUTEX, BARRIER, ACCEPT), reworked as in-process primitives per
// spec.md §9's re-architecture hint. It holds no cleanup registry;
// shutdown cleanup is the deferred Close chain in cmd/cgiserver.
// A named OS semaphore has no analogue worth keeping in a
// single-process Go rewrite; golang.org/x/sync/semaphore.Weighted and a
// channel-based binary semaphore serve the same admission-control and
// serialization roles.
package resources

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/arqtic/cgiserver/internal/srverr"
)

const (
	errInvalidLimit srverr.Code = srverr.MinPkgResources + iota
)

func init() {
	srverr.Register(errInvalidLimit, "max_clients must be greater than 0")
}

// handle is one live connection's cancellation control, the Go
// analogue of a pthread_t entry in the C source's threads[] table.
type handle struct {
	id     uint64
	cancel context.CancelFunc
}

// Pack is the ConcurrencyState entity of spec.md §3: it owns the
// BARRIER admission semaphore, the ACCEPT accept-serialization
// semaphore, and the MUTEX-guarded handle table (n_threads is simply
// len(table) under mu, so no separate counter can drift from the
// table it describes).
type Pack struct {
	mu      sync.Mutex // MUTEX: guards table and nextID
	table   map[uint64]handle
	nextID  uint64
	barrier *semaphore.Weighted // BARRIER: available connection slots
	accept  chan struct{}       // ACCEPT: binary semaphore, buffered 1
	maxCli  int
}

// New allocates a Pack sized for maxClients simultaneous connections.
// maxClients must be >= 1, matching spec.md §3's ServerConfig
// invariant.
func New(maxClients int) (*Pack, error) {
	if maxClients < 1 {
		return nil, srverr.New(errInvalidLimit)
	}

	accept := make(chan struct{}, 1)
	accept <- struct{}{}

	return &Pack{
		table:   make(map[uint64]handle),
		barrier: semaphore.NewWeighted(int64(maxClients)),
		accept:  accept,
		maxCli:  maxClients,
	}, nil
}

// MaxClients returns the admission limit the pack was created with.
func (p *Pack) MaxClients() int {
	return p.maxCli
}

// AcquireBarrier blocks until a connection slot is available or ctx is
// done. Every successful AcquireBarrier must be matched by exactly one
// ReleaseBarrier on every exit path — spec.md §3's BARRIER invariant.
func (p *Pack) AcquireBarrier(ctx context.Context) error {
	return p.barrier.Acquire(ctx, 1)
}

// ReleaseBarrier returns one connection slot to the pool.
func (p *Pack) ReleaseBarrier() {
	p.barrier.Release(1)
}

// AcquireAccept serializes use of the shared accept path: in Reactive
// mode it protects the shared dispatch slot handed to a freshly
// spawned worker; in Pool mode it ensures only one worker is ever
// inside accept at a time.
func (p *Pack) AcquireAccept(ctx context.Context) error {
	select {
	case <-p.accept:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseAccept hands the ACCEPT permit back.
func (p *Pack) ReleaseAccept() {
	select {
	case p.accept <- struct{}{}:
	default:
	}
}

// Register adds cancel to the handle table under MUTEX and returns the
// id assigned to it. Registration only happens after a handler
// goroutine has actually started, so — unlike the C source's
// pthread_create/pthread_detach failure paths, which could leave a
// half-registered table entry — there is no window where an id exists
// in the table without a running handler behind it.
func (p *Pack) Register(cancel context.CancelFunc) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.table[id] = handle{id: id, cancel: cancel}

	return id
}

// Unregister removes id from the table. Safe to call more than once.
func (p *Pack) Unregister(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.table, id)
}

// Count reports the number of live entries (n_threads in spec.md §3).
func (p *Pack) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.table)
}

// CancelAll invokes every registered handle's cancel function under
// MUTEX, matching the SIGINT handler's behavior in the original source:
// it cancels every live thread while holding the table lock so no
// handler can be mid-cleanup and mid-cancellation at once.
func (p *Pack) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range p.table {
		h.cancel()
	}
}
