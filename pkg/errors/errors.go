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

package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies monitoring failures by where they originate and
// whether the affected sampler can keep running.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates a malformed value in the configuration
	// map. Raised before any background work starts.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"
	// ErrCodeEnvironment indicates the host is missing something a sampler
	// needs: a binary, a readable pseudo-file, or recognizable tool output.
	// Fails sampler construction; the sampler never runs.
	ErrCodeEnvironment ErrorCode = "ENVIRONMENT"
	// ErrCodeParse indicates a line of tool output matched none of the known
	// header, data, or blank patterns. Non-fatal in steady state.
	ErrCodeParse ErrorCode = "PARSE"
	// ErrCodeProcess indicates a supervised subprocess or its streams failed
	// unexpectedly. Fatal to the owning sampler only.
	ErrCodeProcess ErrorCode = "PROCESS"
	// ErrCodeInternal indicates an internal system error.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// StructuredError provides structured error information for better
// observability. It includes an error code for programmatic handling, a
// human-readable message, the underlying cause, and optional context.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new StructuredError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeInternal when err
// is not a StructuredError.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return HasCode(err, ErrCodeConfiguration) }

// IsEnvironment reports whether err is an environment error.
func IsEnvironment(err error) bool { return HasCode(err, ErrCodeEnvironment) }

// IsParse reports whether err is a parse error.
func IsParse(err error) bool { return HasCode(err, ErrCodeParse) }

// IsProcess reports whether err is a process error.
func IsProcess(err error) bool { return HasCode(err, ErrCodeProcess) }
