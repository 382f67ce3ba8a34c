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

package static_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/arqtic/cgiserver/internal/static"
)

func TestResolveRoot(t *testing.T) {
	got, err := static.Resolve("/srv/www", "/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/srv/www/index.html" {
		t.Fatalf("got %q, want /srv/www/index.html", got)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	if _, err := static.Resolve("/srv/www", "/../etc/passwd"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestResolveRejectsOversizedPath(t *testing.T) {
	long := "/" + strings.Repeat("a", 5000)
	if _, err := static.Resolve("/srv/www", long); err == nil {
		t.Fatal("expected oversized path to be rejected")
	}
}

func TestContentTypeTable(t *testing.T) {
	cases := map[string]string{
		"/a/index.html": "text/html",
		"/a/index.htm":  "text/html",
		"/a/pic.gif":    "image/gif",
		"/a/pic.jpeg":   "image/jpeg",
		"/a/pic.jpg":    "image/jpeg",
		"/a/clip.mpeg":  "video/mpeg",
		"/a/clip.mpg":   "video/mpeg",
		"/a/file.doc":   "application/msword",
		"/a/file.docx":  "application/msword",
		"/a/file.pdf":   "application/pdf",
		"/a/unknown.xy": "text/plain",
	}

	for path, want := range cases {
		if got := static.ContentType(path); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestStatAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/index.html"
	body := []byte("hi")
	if err := writeFile(path, body); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	info, err := static.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len(body)) {
		t.Fatalf("Size = %d, want %d", info.Size, len(body))
	}

	f, err := static.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, len(body))
	if _, err := f.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hi" {
		t.Fatalf("got %q, want %q", buf, "hi")
	}
}

func TestStatMissingIsNotFound(t *testing.T) {
	_, err := static.Stat("/no/such/file/for/sure")
	if err == nil || !static.IsNotFound(err) {
		t.Fatalf("expected IsNotFound error, got %v", err)
	}
}

// TestHTTPDateUsesLiteralGMT guards against reusing time.RFC1123
// directly: formatting a UTC time with that layout renders the zone
// as "UTC", but spec.md §4.4/§6 require the literal "GMT".
func TestHTTPDateUsesLiteralGMT(t *testing.T) {
	ts := time.Date(2026, time.July, 29, 13, 4, 5, 0, time.UTC)
	got := static.HTTPDate(ts)
	want := "Wed, 29 Jul 2026 13:04:05 GMT"
	if got != want {
		t.Fatalf("HTTPDate = %q, want %q", got, want)
	}
}

func writeFile(path string, body []byte) error {
	return os.WriteFile(path, body, 0o644)
}
