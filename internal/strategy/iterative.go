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

	"github.com/arqtic/cgiserver/internal/listener"
	"github.com/arqtic/cgiserver/internal/srvlog"
)

// Iterative runs a single accept/handle loop on the calling goroutine.
// It does not honor max_clients > 1: spec.md §4.2 requires a one-time
// warning rather than any attempt to enforce the limit in this mode.
type Iterative struct {
	Listener   *listener.Listener
	Handle     HandleFunc
	MaxClients int
	Log        *srvlog.Logger
}

func (s *Iterative) Run(ctx context.Context) error {
	if s.MaxClients > 1 {
		s.Log.Warnf("iterative mode ignores max_clients=%d; serving one connection at a time", s.MaxClients)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := s.Listener.Accept()
		if err != nil {
			if isClosed(err) {
				return nil
			}
			continue
		}

		s.Handle(conn)
	}
}
