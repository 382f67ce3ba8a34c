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

package strategy

import (
	"context"
	"net"

	"github.com/arqtic/cgiserver/internal/listener"
	"github.com/arqtic/cgiserver/internal/resources"
	"github.com/arqtic/cgiserver/internal/srvlog"
)

// Reactive is the thread-per-connection driver bounded by a BARRIER
// admission semaphore, per spec.md §4.2: acquire a slot, accept, spawn
// a detached worker that registers itself only once it is actually
// running, and release its slot on every exit path.
type Reactive struct {
	Listener *listener.Listener
	Handle   HandleFunc
	Pool     *resources.Pack
	Log      *srvlog.Logger
}

func (s *Reactive) Run(ctx context.Context) error {
	for {
		if err := s.Pool.AcquireBarrier(ctx); err != nil {
			return nil
		}

		conn, err := s.Listener.Accept()
		if err != nil {
			s.Pool.ReleaseBarrier()
			if isClosed(err) {
				return nil
			}
			continue
		}

		s.dispatch(ctx, conn)
	}
}

// dispatch spawns the worker goroutine for conn. Acquiring and
// releasing ACCEPT around the handoff mirrors spec.md §4.2 step 4: the
// semaphore serializes use of the shared dispatch slot, here expressed
// simply as the conn/handle values captured by the closure rather than
// a literal shared variable, since Go closures already give each
// goroutine its own copy.
func (s *Reactive) dispatch(ctx context.Context, conn net.Conn) {
	if err := s.Pool.AcquireAccept(ctx); err != nil {
		conn.Close()
		s.Pool.ReleaseBarrier()
		return
	}

	go s.worker(conn)
}

// worker registers itself in the handle table, then releases ACCEPT
// immediately — before invoking the handler — matching
// original_source/practica1-main/srclib/server/reactive.c:73's
// sem_post(s_accept) ahead of process(connection_fd) at line 79.
// ACCEPT only ever serializes the read of the dispatch slot, not the
// handler itself, so holding it across Handle would collapse Reactive
// mode to one request at a time regardless of max_clients.
func (s *Reactive) worker(conn net.Conn) {
	id := s.Pool.Register(func() { conn.Close() })
	s.Pool.ReleaseAccept()

	defer func() {
		s.Pool.Unregister(id)
		s.Pool.ReleaseBarrier()
	}()

	s.Handle(conn)
}
