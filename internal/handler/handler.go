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

// Package handler is the per-connection request lifecycle: read one
// request (internal/httpproto), resolve and dispatch it to the static
// file responder or the CGI coordinator, and write the response. It
// is the synchronous handle(conn) → () function every concurrency
// strategy in internal/strategy drives.
package handler

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/arqtic/cgiserver/internal/cgi"
	"github.com/arqtic/cgiserver/internal/httpproto"
	"github.com/arqtic/cgiserver/internal/metrics"
	"github.com/arqtic/cgiserver/internal/srvconfig"
	"github.com/arqtic/cgiserver/internal/srvlog"
	"github.com/arqtic/cgiserver/internal/static"
)

// Handler owns the configuration and logger every connection handler
// invocation needs; its Handle method is the handle(conn) → ()
// primitive spec.md §4.2 requires of all three strategies.
type Handler struct {
	Config *srvconfig.Config
	Log    *srvlog.Logger
}

// Handle runs the full request lifecycle for one connection and
// always closes conn before returning, regardless of outcome.
func (h *Handler) Handle(conn net.Conn) {
	defer conn.Close()

	metrics.ConnectionsAccepted.Inc()
	metrics.ActiveHandlers.Inc()
	defer metrics.ActiveHandlers.Dec()

	req, err := httpproto.ReadRequest(conn)
	if err != nil {
		h.handleReadError(conn, err)
		return
	}

	h.dispatch(req)
}

func (h *Handler) handleReadError(conn net.Conn, err error) {
	switch {
	case errors.Is(err, io.EOF):
		return
	case httpproto.IsTimeout(err):
		h.Log.Warnf("timed out waiting for request: %v", err)
		return
	case httpproto.IsBadRequest(err):
		httpproto.WriteResponse(conn, h.Log, httpproto.StatusBadRequest, "text/plain", []byte("Bad Request"))
		return
	default:
		httpproto.WriteResponse(conn, h.Log, httpproto.StatusInternalServerError, "text/plain", []byte("Internal Server Error"))
	}
}

func (h *Handler) dispatch(req *httpproto.Request) {
	switch req.Line.Method {
	case "GET":
		h.handleGET(req)
	case "POST":
		h.handlePOST(req)
	case "OPTIONS":
		h.handleOPTIONS(req)
	default:
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusNotImplemented, "text/plain", []byte("Not Implemented"))
	}
}

func (h *Handler) handleGET(req *httpproto.Request) {
	full, err := static.Resolve(h.Config.ServerRoot, req.Line.Path)
	if err != nil {
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusBadRequest, "text/plain", []byte("Bad Request"))
		return
	}

	if script, serr := cgi.Detect(full); serr == nil {
		metrics.CGIInvocations.Inc()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		out, rerr := cgi.Run(ctx, script, nil, h.Log)
		if rerr != nil {
			httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusInternalServerError, "text/plain", nil)
			return
		}
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusOK, "text/plain", out)
		return
	}

	h.serveFile(req, full)
}

func (h *Handler) serveFile(req *httpproto.Request, full string) {
	info, err := static.Stat(full)
	if err != nil {
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusNotFound, "text/plain", []byte("Not Found"))
		return
	}

	f, err := static.Open(full)
	if err != nil {
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusInternalServerError, "text/plain", []byte("Internal Server Error"))
		return
	}
	defer f.Close()

	headers := map[string]string{
		"Date":          static.HTTPDate(time.Now()),
		"Server":        h.Config.ServerSignature,
		"Last-Modified": static.HTTPDate(info.ModTime),
		"Content-Type":  static.ContentType(full),
	}

	httpproto.WriteStream(req.Conn, h.Log, httpproto.StatusOK, headers, info.Size, f)
}

func (h *Handler) handlePOST(req *httpproto.Request) {
	full, err := static.Resolve(h.Config.ServerRoot, req.Line.Path)
	if err != nil {
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusBadRequest, "text/plain", []byte("Bad Request"))
		return
	}

	script, serr := cgi.Detect(full)
	if serr != nil {
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusNotImplemented, "text/plain", []byte("Not Implemented"))
		return
	}

	metrics.CGIInvocations.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out []byte
	cgi.WithBodyDeadline(req.Conn, func() {
		out, err = cgi.Run(ctx, script, req.BodyReader(), h.Log)
	})
	if err != nil {
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusInternalServerError, "text/plain", nil)
		return
	}

	httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusOK, "text/plain", out)
}

func (h *Handler) handleOPTIONS(req *httpproto.Request) {
	if req.Line.Path == "*" {
		httpproto.WriteHeaderOnly(req.Conn, h.Log, httpproto.StatusOK, map[string]string{"Allow": "GET,POST,OPTIONS"})
		return
	}

	full, err := static.Resolve(h.Config.ServerRoot, req.Line.Path)
	if err != nil {
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusBadRequest, "text/plain", []byte("Bad Request"))
		return
	}

	if _, err := static.Stat(full); err != nil {
		httpproto.WriteResponse(req.Conn, h.Log, httpproto.StatusNotFound, "text/plain", []byte("Not Found"))
		return
	}

	allow := "GET,OPTIONS"
	if _, serr := cgi.Detect(full); serr == nil {
		allow = "GET,POST,OPTIONS"
	}

	httpproto.WriteHeaderOnly(req.Conn, h.Log, httpproto.StatusOK, map[string]string{"Allow": allow})
}
