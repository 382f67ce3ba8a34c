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

package cgi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/arqtic/cgiserver/internal/srverr"
	"github.com/arqtic/cgiserver/internal/srvlog"
)

const (
	errSpawn srverr.Code = srverr.MinPkgCGI + 10 + iota
	errWait
)

func init() {
	srverr.Register(errSpawn, "unable to start script interpreter")
	srverr.Register(errWait, "script interpreter exited with an error")
}

// bodyReadTimeout and bodyRestoreTimeout are spec.md §4.8.2's 3s/30s
// receive-timeout pair used while streaming a POST body to the child.
const (
	bodyReadTimeout    = 3 * time.Second
	bodyRestoreTimeout = 30 * time.Second
)

// deadliner is the minimal surface cgi needs from the client
// connection to narrow and restore the receive timeout around body
// streaming, without importing net directly into this package's API.
type deadliner interface {
	SetReadDeadline(time.Time) error
}

// Run executes s as a child process. When body is non-nil, its bytes
// are decoded (spec.md §4.7 +/ %HH rules) and streamed to the child's
// stdin as they are read, matching the POST sub-protocol (§4.8.2); a
// nil body runs the plain GET sub-protocol (§4.8.1). It returns the
// child's collected stdout, or an error if the interpreter could not
// be started. A non-zero exit is logged but does not itself fail the
// call — the original CGI coordinator always returns whatever stdout
// was collected, even from a failing script.
func Run(ctx context.Context, s Script, body io.Reader, log *srvlog.Logger) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.Argv[0], s.Argv[1:]...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	var stdin io.WriteCloser
	if body != nil {
		w, err := cmd.StdinPipe()
		if err != nil {
			return nil, srverr.Wrap(errSpawn, err)
		}
		stdin = w
	}

	if err := cmd.Start(); err != nil {
		return nil, srverr.Wrap(errSpawn, err)
	}

	if stdin != nil {
		streamPostBody(stdin, body, log)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Warnf("script %s exited with status %d", s.Argv[len(s.Argv)-1], exitErr.ExitCode())
		} else {
			log.Errorf("error waiting for script %s: %v", s.Argv[0], err)
		}
	}

	return stdout.Bytes(), nil
}

// streamPostBody implements spec.md §4.8.2 step 2's tiny state
// machine: bytes are discarded up to the first '=', then value bytes
// are decoded ('+' -> space, '%HH' -> byte) and written to the
// child's stdin one decoded byte at a time; '&' restarts the key-skip
// scan for the next pair. EOF or any read error on body stops the
// scan, matching "on EOF or timeout, stop" — the 3-second receive
// deadline applied by WithBodyDeadline is what turns a stalled client
// into a timeout error here. stdin is always closed on return.
func streamPostBody(stdin io.WriteCloser, body io.Reader, log *srvlog.Logger) {
	defer stdin.Close()

	const (
		stateSkipKey = iota
		stateValue
	)
	state := stateSkipKey

	readByte := func() (byte, bool) {
		var b [1]byte
		if _, err := io.ReadFull(body, b[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Warnf("error reading request body: %v", err)
			}
			return 0, false
		}
		return b[0], true
	}

	write := func(b byte) bool {
		if _, err := stdin.Write([]byte{b}); err != nil {
			if errors.Is(err, syscall.EPIPE) {
				log.Warnf("client aborted while streaming request body to script")
			} else {
				log.Errorf("error writing request body to script: %v", err)
			}
			return false
		}
		return true
	}

	for {
		c, ok := readByte()
		if !ok {
			return
		}

		if state == stateSkipKey {
			if c == '=' {
				state = stateValue
			}
			continue
		}

		switch c {
		case '&':
			state = stateSkipKey
		case '+':
			if !write(' ') {
				return
			}
		case '%':
			hi, ok1 := readByte()
			if !ok1 {
				return
			}
			lo, ok2 := readByte()
			if !ok2 {
				return
			}
			if isHex(hi) && isHex(lo) {
				if !write(hexByte(hi, lo)) {
					return
				}
				continue
			}
			if !write('%') {
				return
			}
			for _, b := range [2]byte{hi, lo} {
				if b == '&' {
					state = stateSkipKey
					break
				}
				if !write(b) {
					return
				}
			}
		default:
			if !write(c) {
				return
			}
		}
	}
}

// WithBodyDeadline narrows conn's read deadline to 3 seconds for the
// duration of fn, then restores it to 30 seconds regardless of how fn
// returns — spec.md §4.8.2 step 1's timeout discipline.
func WithBodyDeadline(conn deadliner, fn func()) {
	_ = conn.SetReadDeadline(time.Now().Add(bodyReadTimeout))
	defer func() {
		_ = conn.SetReadDeadline(time.Now().Add(bodyRestoreTimeout))
	}()

	fn()
}
