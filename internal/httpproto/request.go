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

// Package httpproto is the byte-accurate HTTP/1.1 request reader and
// method dispatcher. It never wraps the connection in a buffered
// reader: every byte it does not need for the request line and
// headers is left untouched on the socket, because the POST path
// streams the body straight from the connection into a CGI child.
package httpproto

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arqtic/cgiserver/internal/srverr"
	"github.com/arqtic/cgiserver/internal/srvlog"
)

const (
	errShortLine srverr.Code = srverr.MinPkgHTTP + iota
	errPeerClosed
	errTimeout
	errIO
)

func init() {
	srverr.Register(errShortLine, "request line did not contain method, path and protocol")
	srverr.Register(errPeerClosed, "peer closed connection before sending a request")
	srverr.Register(errTimeout, "timed out waiting for request data")
	srverr.Register(errIO, "I/O error reading request")
}

const (
	lineBufSize  = 4096
	maxMethodLen = 7
	maxPathLen   = 255
	maxProtoLen  = 15
)

// RequestLine is the method/path/protocol triple spec.md §3 bounds in
// length and §4.3 extracts by whitespace-delimited tokenization.
type RequestLine struct {
	Method   string
	Path     string
	Protocol string
}

// Request is one parsed HTTP request: the request line plus the raw
// header lines collected verbatim (the dispatcher only needs a
// handful of header values, so headers are kept as a simple ordered
// slice rather than a full case-folded map).
type Request struct {
	ID      string
	Line    RequestLine
	Headers []string
	Conn    net.Conn
}

// readLine reads one CRLF-terminated line from conn one byte at a
// time into a 4096-byte buffer, matching the state machine spec.md
// §4.3 mandates: a "saw CR" flag armed by \r, satisfied by \n,
// disarmed by anything else. Returns the line without its trailing
// CRLF. bufio would be wrong here: it would read ahead into body
// bytes that belong to the CGI POST streamer, not the header parser.
func readLine(conn net.Conn, buf []byte) (string, error) {
	n := 0
	sawCR := false

	for {
		var b [1]byte
		if _, err := io.ReadFull(conn, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if n == 0 {
					return "", io.EOF
				}
				return "", srverr.New(errPeerClosed)
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return "", srverr.New(errTimeout)
			}
			return "", srverr.Wrap(errIO, err)
		}

		c := b[0]

		if sawCR && c == '\n' {
			return string(buf[:n-1]), nil
		}
		sawCR = c == '\r'

		if n >= len(buf) {
			return "", srverr.New(errShortLine)
		}
		buf[n] = c
		n++
	}
}

// ReadRequest parses the request line and header block from conn. It
// returns io.EOF when the peer closed before sending any byte at all
// (the caller should close silently), and a *srverr.CodedError
// otherwise, from which the caller derives the right status response.
func ReadRequest(conn net.Conn) (*Request, error) {
	buf := make([]byte, lineBufSize)

	line, err := readLine(conn, buf)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, srverr.New(errShortLine)
	}

	method, path, proto := fields[0], fields[1], fields[2]
	if len(method) > maxMethodLen || len(path) > maxPathLen || len(proto) > maxProtoLen {
		return nil, srverr.New(errShortLine)
	}

	req := &Request{
		ID: uuid.NewString(),
		Line: RequestLine{
			Method:   method,
			Path:     path,
			Protocol: proto,
		},
		Conn: conn,
	}

	for {
		hline, err := readLine(conn, buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, srverr.New(errPeerClosed)
			}
			return nil, err
		}
		if hline == "" {
			break
		}
		req.Headers = append(req.Headers, hline)
	}

	return req, nil
}

// bodyReader wraps the remaining body stream read during POST body
// tokenizing; it is intentionally unexported and used only after
// headers are fully consumed, never before — see cgi's streamPostBody.
type bodyReader struct {
	conn net.Conn
}

func (b bodyReader) Read(p []byte) (int, error) { return b.conn.Read(p) }

// BodyReader exposes conn for direct (unbuffered) reads once the
// header phase has completed, for the CGI POST body streamer.
func (r *Request) BodyReader() io.Reader { return bodyReader{conn: r.Conn} }

// SetBodyDeadline sets conn's read deadline to d from now. Nothing in
// this module calls it: the POST path in internal/handler narrows and
// restores the deadline with cgi.WithBodyDeadline instead.
func SetBodyDeadline(conn net.Conn, d time.Duration) error {
	return conn.SetReadDeadline(time.Now().Add(d))
}

// Log is a type alias for srvlog.Logger. No caller uses it; the
// response writers and internal/handler take *srvlog.Logger directly.
type Log = srvlog.Logger

// classify reports whether err is a *srverr.CodedError carrying want.
func classify(err error, want srverr.Code) bool {
	ce, ok := err.(*srverr.CodedError)
	return ok && ce.Code == want
}

// IsTimeout reports whether err means the peer sent nothing before
// the connection's receive timeout elapsed — spec.md §4.3 step 3:
// log a warning and close silently, no response is written.
func IsTimeout(err error) bool { return classify(err, errTimeout) }

// IsBadRequest reports whether err corresponds to a malformed or
// prematurely closed request line — spec.md §4.3 steps 2 and 5: these
// get a 400 Bad Request response.
func IsBadRequest(err error) bool {
	return classify(err, errPeerClosed) || classify(err, errShortLine)
}

// IsServerError reports whether err is an otherwise-unclassified I/O
// failure — spec.md §4.3 step 4: these get a 500 response.
func IsServerError(err error) bool { return classify(err, errIO) }
