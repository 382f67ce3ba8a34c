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

package srvconfig

import (
	"github.com/fsnotify/fsnotify"

	"github.com/arqtic/cgiserver/internal/srverr"
)

// Watcher notifies onChange whenever the on-disk config file is
// written. The core never reloads automatically from this (the spec
// treats ServerConfig as immutable after startup); this only gives an
// operator-facing log line, so a restart can be scheduled deliberately.
type Watcher struct {
	w *fsnotify.Watcher
}

// Watch starts watching path. Call Stop to release the inotify handle.
func Watch(path string, onChange func()) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, srverr.Wrap(errLoad, err)
	}

	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, srverr.Wrap(errLoad, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && onChange != nil {
					onChange()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &Watcher{w: w}, nil
}

// Stop releases the underlying watch handle.
func (c *Watcher) Stop() error {
	if c == nil || c.w == nil {
		return nil
	}

	return c.w.Close()
}
