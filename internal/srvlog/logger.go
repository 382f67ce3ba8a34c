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

package srvlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a thread-safe leveled logger writing to an append-only
// file and to stdout. It is the concrete collaborator the spec calls
// "Logger" in its external-interfaces section.
type Logger struct {
	mu   sync.Mutex
	base *logrus.Logger
	file *os.File
}

// Open creates or appends to path and returns a ready Logger. The
// caller must call Close on shutdown to flush and release the file
// handle. CGI children started through os/exec do not inherit the
// descriptor, because os.OpenFile opens it close-on-exec.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.DebugLevel)
	base.AddHook(&lineHook{out: f, format: &logrus.TextFormatter{FullTimestamp: true, DisableColors: true}})
	base.AddHook(&lineHook{out: os.Stdout, format: &logrus.TextFormatter{FullTimestamp: true}})

	return &Logger{base: base, file: f}, nil
}

// lineHook writes every log entry as one formatted line to out. Using
// a hook rather than logrus.SetOutput lets the file and stdout
// destinations use independent formatters while sharing one *Logger.
type lineHook struct {
	out    io.Writer
	format logrus.Formatter
}

func (h *lineHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *lineHook) Fire(e *logrus.Entry) error {
	b, err := h.format.Format(e)
	if err != nil {
		return err
	}

	_, err = h.out.Write(b)

	return err
}

func (l *Logger) log(lvl Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	l.base.WithField("level", lvl.String()).Log(lvl.logrus(), msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(DebugLevel, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(InfoLevel, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(WarnLevel, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(ErrorLevel, format, args...) }

// Close flushes and releases the underlying log file. Safe to call
// once; a nil Logger is a no-op so callers can defer it unconditionally
// even on a failed Open.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	return l.file.Close()
}
