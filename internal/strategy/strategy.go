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

// Package strategy implements the three interchangeable accept-loop
// drivers spec.md §4.2 describes — Iterative, Reactive and Pool — all
// consuming the same synchronous handle(conn) function.
package strategy

import (
	"context"
	"errors"
	"net"
)

// HandleFunc is the per-connection handler every strategy drives.
type HandleFunc func(net.Conn)

// Driver runs an accept loop until ctx is cancelled.
type Driver interface {
	Run(ctx context.Context) error
}

// isClosed reports whether err is the error Accept returns once the
// listener has been closed out from under a running driver — the
// expected, quiet way every strategy's loop exits on shutdown.
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
