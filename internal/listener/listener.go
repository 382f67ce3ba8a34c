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

// Package listener opens the bind/listen socket and accepts client
// connections, per spec.md §4.1. SO_REUSEPORT is attempted best-effort
// on Linux; a failure there is logged and does not abort startup.
package listener

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/arqtic/cgiserver/internal/srverr"
	"github.com/arqtic/cgiserver/internal/srvlog"
)

const (
	errInvalidPort srverr.Code = srverr.MinPkgListener + iota
	errOpen
	errAccept
)

func init() {
	srverr.Register(errInvalidPort, "listen port must be non-zero")
	srverr.Register(errOpen, "unable to open listen socket")
	srverr.Register(errAccept, "accept failed")
}

// acceptTimeout is the per-connection receive timeout spec.md §3
// mandates for every accepted Connection.
const acceptTimeout = 30 * time.Second

// Listener wraps the bound, listening TCP socket (spec.md's
// ListenSocket entity).
type Listener struct {
	ln  net.Listener
	log *srvlog.Logger
}

// Open creates a TCP listener bound to 0.0.0.0:port. Port 0 is
// rejected; ports outside 1..65535 are masked to 16 bits and logged
// as a warning, matching the original C source's uint16_t cast
// behavior (spec.md §4.1).
func Open(port int, log *srvlog.Logger) (*Listener, error) {
	if port == 0 {
		return nil, srverr.New(errInvalidPort)
	}

	if port < 0 || port > 0xFFFF {
		masked := uint16(port)
		log.Warnf("listen port %d exceeds 16-bit limits, casted to %d", port, masked)
		port = int(masked)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}); err != nil {
				return err
			}
			if sockErr != nil {
				log.Warnf("SO_REUSEPORT not applied: %v", sockErr)
			}
			return nil
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", addrFor(port))
	if err != nil {
		return nil, srverr.Wrap(errOpen, err)
	}

	log.Infof("socket opened successfully on %s", addrFor(port))

	return &Listener{ln: ln, log: log}, nil
}

func addrFor(port int) string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
}

// Accept blocks until a client connects, then arms the 30-second
// receive timeout spec.md §3 requires. On failure it logs a warning
// and returns an error — it deliberately does NOT close the listen
// socket (spec.md §9 flags the original accept_client's close-on-
// failure as a defect; this is the fixed behavior).
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		l.log.Warnf("accept failed: %v", err)
		return nil, srverr.Wrap(errAccept, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(acceptTimeout)); err != nil {
		l.log.Warnf("unable to set receive timeout: %v", err)
	}

	l.log.Infof("accepted new connection from %s", conn.RemoteAddr())

	return conn, nil
}

// Close releases the listen socket. Called exactly once at shutdown.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
