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

// Package cgi constructs script argv lists from request URIs and runs
// the GET/POST CGI sub-protocols described in spec.md §4.7-4.8: a
// pipe pair per direction, exec of the resolved interpreter, and
// output collection with reaping.
package cgi

import (
	"strings"

	"github.com/arqtic/cgiserver/internal/srverr"
)

const (
	errNotAScript srverr.Code = srverr.MinPkgCGI + iota
)

func init() {
	srverr.Register(errNotAScript, "target is not a recognized script")
}

// Script is a resolved interpreter invocation: Argv is ready to be
// passed to exec.Command(Argv[0], Argv[1:]...).
type Script struct {
	Argv []string
}

// phpInterpreter and pyInterpreter match the hard-coded interpreter
// paths in the original source exactly; these are not configurable.
const (
	phpInterpreter = "/bin/php"
	pyInterpreter  = "/bin/python3"
)

// Detect inspects joined (an already-resolved filesystem path,
// possibly with a "?query" suffix) and returns a Script if it names a
// .php or .py target, or errNotAScript otherwise — spec.md §4.7
// steps 1-4.
func Detect(joined string) (Script, error) {
	scriptPath, query, _ := strings.Cut(joined, "?")

	var argv []string
	switch {
	case strings.Contains(scriptPath, ".php"):
		argv = []string{phpInterpreter, scriptPath}
	case strings.Contains(scriptPath, ".py"):
		argv = []string{pyInterpreter, "-u", scriptPath}
	default:
		return Script{}, srverr.New(errNotAScript)
	}

	argv = append(argv, decodeQueryValues(query)...)

	return Script{Argv: argv}, nil
}

// decodeQueryValues implements the alternating '='-then-'&' scan
// spec.md §4.7 step 5 describes: keys are discarded, only values are
// kept, each one decoded with the same +/％HH rules used for POST
// body streaming.
func decodeQueryValues(query string) []string {
	if query == "" {
		return nil
	}

	var values []string
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		_, value, found := strings.Cut(pair, "=")
		if !found {
			// No '=' in this pair: the original alternates on '=' then
			// '&' unconditionally, so a key with no value still yields
			// an (empty) value slot rather than being skipped.
			value = ""
		}
		values = append(values, decodeValue(value))
	}

	return values
}

// decodeValue applies '+' → space and '%HH' → byte, matching spec.md
// §4.7 step 5.b/c. Malformed '%' escapes (missing or non-hex digits)
// are passed through literally rather than rejected, since the
// original's in-place decoder has no error path for that case.
func decodeValue(v string) string {
	var b strings.Builder
	b.Grow(len(v))

	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(v) && isHex(v[i+1]) && isHex(v[i+2]) {
				b.WriteByte(hexByte(v[i+1], v[i+2]))
				i += 2
			} else {
				b.WriteByte('%')
			}
		default:
			b.WriteByte(v[i])
		}
	}

	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func hexByte(hi, lo byte) byte {
	return hexDigit(hi)<<4 | hexDigit(lo)
}

func hexDigit(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
