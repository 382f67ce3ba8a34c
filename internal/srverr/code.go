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

// Package srverr defines a small per-package error code scheme, modeled
// after a code-registry pattern: every package reserves a block of
// codes so no two packages can collide, and each code carries a
// registered human message looked up lazily.
package srverr

import "strconv"

// Code is a package-scoped numeric error identifier, similar in spirit
// to an HTTP status code but local to this module.
type Code uint16

const (
	// MinPkgConfig reserves the code range used by internal/srvconfig.
	MinPkgConfig Code = 100 * (iota + 1)
	// MinPkgLogger reserves the code range used by internal/srvlog.
	MinPkgLogger
	// MinPkgResources reserves the code range used by internal/resources.
	MinPkgResources
	// MinPkgListener reserves the code range used by internal/listener.
	MinPkgListener
	// MinPkgHTTP reserves the code range used by internal/httpproto.
	MinPkgHTTP
	// MinPkgStatic reserves the code range used by internal/static.
	MinPkgStatic
	// MinPkgCGI reserves the code range used by internal/cgi.
	MinPkgCGI
	// MinPkgStrategy reserves the code range used by internal/strategy.
	MinPkgStrategy
)

var registry = make(map[Code]string)

// Register associates a human-readable message with a code. Intended
// to be called once per code from an owning package's init().
func Register(code Code, message string) {
	registry[code] = message
}

// Message returns the registered message for code, or a generic
// fallback if nothing was registered.
func Message(code Code) string {
	if m, ok := registry[code]; ok {
		return m
	}

	return "unregistered error code " + strconv.Itoa(int(code))
}

func (c Code) String() string {
	return strconv.Itoa(int(c))
}
