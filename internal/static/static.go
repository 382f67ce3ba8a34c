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

// Package static resolves request paths against a document root,
// rejects traversal attempts, and serves plain files with the fixed
// extension-to-MIME table spec.md §4.4 specifies.
package static

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arqtic/cgiserver/internal/srverr"
)

const (
	errTraversal srverr.Code = srverr.MinPkgStatic + iota
	errTooLong
	errNotFound
	errOpen
)

func init() {
	srverr.Register(errTraversal, "path traversal rejected")
	srverr.Register(errTooLong, "resolved path exceeds platform limit")
	srverr.Register(errNotFound, "resource not found")
	srverr.Register(errOpen, "unable to open resource")
}

// maxPathLen mirrors PATH_MAX on a typical Linux system — the
// platform path limit the original resolver checks against.
const maxPathLen = 4096

// Resolve joins root with the request path, substituting index.html
// for "/" and rejecting any path containing "..", matching spec.md
// §3's path-acceptance invariant and §4.4 step 1.
func Resolve(root, reqPath string) (string, error) {
	if reqPath == "/" {
		reqPath = "/index.html"
	}

	if strings.Contains(reqPath, "..") {
		return "", srverr.New(errTraversal)
	}

	full := root + reqPath
	if len(full) >= maxPathLen {
		return "", srverr.New(errTooLong)
	}

	return full, nil
}

// Extension table for spec.md §4.4: first substring match wins, so
// order matters exactly as written there.
var mimeTable = []struct {
	suffixes []string
	mime     string
}{
	{[]string{".html", ".htm"}, "text/html"},
	{[]string{".gif"}, "image/gif"},
	{[]string{".jpeg", ".jpg"}, "image/jpeg"},
	{[]string{".mpeg", ".mpg"}, "video/mpeg"},
	{[]string{".doc", ".docx"}, "application/msword"},
	{[]string{".pdf"}, "application/pdf"},
}

// ContentType returns the MIME type for path per the fixed table,
// defaulting to text/plain when nothing matches.
func ContentType(path string) string {
	for _, row := range mimeTable {
		for _, suf := range row.suffixes {
			if strings.Contains(path, suf) {
				return row.mime
			}
		}
	}
	return "text/plain"
}

// Info is the subset of file metadata the GET/OPTIONS handlers need.
type Info struct {
	Size    int64
	ModTime time.Time
}

// Stat checks existence and returns size/mtime. A missing file maps
// to errNotFound (→ 404); any other stat failure also maps to
// errNotFound since the original treats every stat failure as 404.
func Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, srverr.Wrap(errNotFound, err)
	}
	return Info{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Open opens path for reading; failure here maps to a 500 in the
// caller, distinct from the 404 Stat produces, matching spec.md
// §4.4 step 3's "stat fails → 404, open fails → 500" distinction.
func Open(path string) (*os.File, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, srverr.Wrap(errOpen, err)
	}
	return f, nil
}

// httpDateLayout is RFC 1123 with a literal "GMT" zone instead of the
// %MST verb, matching net/http's own http.TimeFormat: time.RFC1123
// would render the zone as "UTC" here, not the "GMT" spec.md §4.4 and
// §6 require.
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// HTTPDate formats t as an RFC 1123 GMT timestamp, the format spec.md
// §4.4 requires for both Date and Last-Modified headers.
func HTTPDate(t time.Time) string {
	return t.UTC().Format(httpDateLayout)
}

// IsNotFound reports whether err is the not-found class Stat returns.
func IsNotFound(err error) bool {
	ce, ok := err.(*srverr.CodedError)
	return ok && ce.Code == errNotFound
}
