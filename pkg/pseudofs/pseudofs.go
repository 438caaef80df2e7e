// Copyright (c) 2025, Hostwatch Authors.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pseudofs reads kernel pseudo-files such as /proc and /sys entries.
// Pseudo-file content is regenerated by the kernel on every read, so readers
// here never cache. Read failures are environment errors: the host is missing
// a kernel facility the caller depends on.
package pseudofs

import (
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/hostwatch/hostwatch/pkg/errors"
)

// Option configures a Reader.
type Option func(*Reader)

// Reader reads and splits pseudo-file content.
type Reader struct {
	maxSize int
}

// WithMaxSize sets the maximum size (in bytes) of file content accepted.
// Default is 1MB, far above any /proc entry the samplers read.
func WithMaxSize(size int) Option {
	return func(r *Reader) {
		r.maxSize = size
	}
}

// NewReader creates a pseudo-file reader with the provided options.
func NewReader(opts ...Option) *Reader {
	r := &Reader{
		maxSize: 1 << 20,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Verify checks that the file at path exists and is readable, without
// retaining its content. Samplers call this once at construction so a
// missing pseudo-file fails fast instead of on the first tick.
func (r *Reader) Verify(path string) error {
	if path == "" {
		return errors.New(errors.ErrCodeEnvironment, "pseudo-file path cannot be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"pseudo-file "+path+" does not exist", err)
	}
	if info.IsDir() {
		return errors.New(errors.ErrCodeEnvironment,
			"pseudo-file "+path+" is a directory")
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment,
			"pseudo-file "+path+" is not readable", err)
	}
	return f.Close()
}

// FirstLine reads the file at path and returns its first line, trimmed.
// Single-value pseudo-files like entropy_avail hold one number per read.
func (r *Reader) FirstLine(path string) (string, error) {
	lines, err := r.Lines(path)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", errors.New(errors.ErrCodeEnvironment,
			"pseudo-file "+path+" is empty")
	}
	return lines[0], nil
}

// Lines reads the file at path and splits its content into trimmed,
// non-empty lines.
func (r *Reader) Lines(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New(errors.ErrCodeEnvironment, "pseudo-file path cannot be empty")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment,
			"failed to read pseudo-file "+path, err)
	}

	if !utf8.Valid(b) {
		return nil, errors.New(errors.ErrCodeEnvironment,
			"content of pseudo-file "+path+" is not valid UTF-8")
	}

	if len(b) > r.maxSize {
		return nil, errors.Newf(errors.ErrCodeEnvironment,
			"pseudo-file %s exceeds maximum size of %d bytes", path, r.maxSize)
	}

	parts := strings.Split(string(b), "\n")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			slog.Debug("skipping empty line from pseudo-file", slog.String("path", path))
			continue
		}
		result = append(result, clean)
	}

	return result, nil
}
