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

package httpproto

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"

	"github.com/arqtic/cgiserver/internal/srvlog"
)

// Status is a small, closed set of HTTP status codes — the original
// reason-phrase table only ever served these five.
type Status int

const (
	StatusOK                  Status = 200
	StatusBadRequest          Status = 400
	StatusNotFound            Status = 404
	StatusInternalServerError Status = 500
	StatusNotImplemented      Status = 501
)

var reasonPhrases = map[Status]string{
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusNotFound:            "Not Found",
	StatusInternalServerError: "Internal Server Error",
	StatusNotImplemented:      "Not Implemented",
}

func (s Status) reason() string {
	if r, ok := reasonPhrases[s]; ok {
		return r
	}
	return "Unknown status code"
}

const writeChunk = 4096

// WriteResponse composes and writes a status line, Content-Type,
// Content-Length and Connection: close header block, a blank line and
// the body — the send_http_response equivalent of spec.md §4.9 — with
// a short-write loop and broken-pipe detection.
func WriteResponse(conn net.Conn, log *srvlog.Logger, status Status, contentType string, body []byte) {
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		int(status), status.reason(), contentType, len(body))

	if err := writeAll(conn, []byte(head)); err != nil {
		logWriteErr(log, err)
		return
	}

	if err := writeAll(conn, body); err != nil {
		logWriteErr(log, err)
	}
}

// WriteHeaderOnly writes a status line plus caller-supplied extra
// headers and no body, for the OPTIONS handler (spec.md §4.6).
func WriteHeaderOnly(conn net.Conn, log *srvlog.Logger, status Status, extraHeaders map[string]string) {
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\n", int(status), status.reason())
	for k, v := range extraHeaders {
		head += k + ": " + v + "\r\n"
	}
	head += "Connection: close\r\n\r\n"

	if err := writeAll(conn, []byte(head)); err != nil {
		logWriteErr(log, err)
	}
}

// WriteStream writes a status line + headers, then copies from src to
// conn in writeChunk-sized pieces, looping each write to handle short
// writes, matching the GET file responder (spec.md §4.4.5).
func WriteStream(conn net.Conn, log *srvlog.Logger, status Status, headers map[string]string, contentLength int64, src io.Reader) {
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\n", int(status), status.reason())
	for k, v := range headers {
		head += k + ": " + v + "\r\n"
	}
	head += "Content-Length: " + strconv.FormatInt(contentLength, 10) + "\r\n"
	head += "Connection: close\r\n\r\n"

	if err := writeAll(conn, []byte(head)); err != nil {
		logWriteErr(log, err)
		return
	}

	buf := make([]byte, writeChunk)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if werr := writeAll(conn, buf[:n]); werr != nil {
				logWriteErr(log, werr)
				return
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				log.Warnf("error reading response body: %v", rerr)
			}
			return
		}
	}
}

// writeAll loops Write until every byte of p has been sent or an
// error occurs, the short-write loop spec.md §4.9 calls for.
func writeAll(conn net.Conn, p []byte) error {
	for len(p) > 0 {
		n, err := conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func logWriteErr(log *srvlog.Logger, err error) {
	if errors.Is(err, syscall.EPIPE) {
		log.Warnf("client closed connection during write (broken pipe)")
		return
	}
	log.Errorf("error writing response: %v", err)
}
