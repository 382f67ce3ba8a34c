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

package srverr

import "fmt"

// CodedError wraps an optional parent error under a package-scoped Code.
// It implements the standard errors.Is/errors.Unwrap contract so callers
// can test for a specific Code with errors.As.
type CodedError struct {
	Code   Code
	Parent error
}

// New builds a CodedError with no parent.
func New(code Code) *CodedError {
	return &CodedError{Code: code}
}

// Wrap builds a CodedError that carries parent as its underlying cause.
func Wrap(code Code, parent error) *CodedError {
	return &CodedError{Code: code, Parent: parent}
}

func (e *CodedError) Error() string {
	if e.Parent != nil {
		return fmt.Sprintf("%s (code %d): %v", Message(e.Code), e.Code, e.Parent)
	}

	return fmt.Sprintf("%s (code %d)", Message(e.Code), e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Parent
}

// Is reports whether target is a *CodedError with the same Code.
func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	if !ok {
		return false
	}

	return t.Code == e.Code
}
