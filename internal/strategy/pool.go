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

	"golang.org/x/sync/errgroup"

	"github.com/arqtic/cgiserver/internal/listener"
	"github.com/arqtic/cgiserver/internal/resources"
	"github.com/arqtic/cgiserver/internal/srvlog"
)

// Pool spawns exactly Res.MaxClients() workers up front, each competing
// for the ACCEPT permit before calling Accept, matching spec.md §4.2's
// fixed worker-fleet discipline.
type Pool struct {
	Listener *listener.Listener
	Handle   HandleFunc
	Res      *resources.Pack
	Log      *srvlog.Logger
}

func (s *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < s.Res.MaxClients(); i++ {
		g.Go(func() error {
			s.worker(gctx)
			return nil
		})
	}

	<-ctx.Done()

	return g.Wait()
}

func (s *Pool) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.Res.AcquireAccept(ctx); err != nil {
			return
		}

		conn, err := s.Listener.Accept()
		s.Res.ReleaseAccept()
		if err != nil {
			if isClosed(err) {
				return
			}
			continue
		}

		s.Handle(conn)
	}
}
