/*
Package core holds the URL aggregation pipeline: the per-domain coordinator,
the run index, the batch driver and the worker pool that runs domains.
*/
package core

/*
rxurls — URL discovery and aggregation for target domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"errors"
	"fmt"
)

// customError carries a retryable flag so callers can decide whether an
// operation is worth repeating.
type customError struct {
	message   string
	retryable bool
}

// NewError creates an error with the given message and retryable status.
func NewError(msg string, retryable bool) error {
	return &customError{message: msg, retryable: retryable}
}

func (e *customError) Error() string { return e.message }

// IsRetryable reports whether the error may succeed on a later attempt.
func (e *customError) IsRetryable() bool { return e.retryable }

// IsRetryable reports whether err, or any error it wraps, is a retryable customError.
func IsRetryable(err error) bool {
	var ce *customError
	if errors.As(err, &ce) {
		return ce.retryable
	}
	return false
}

var (
	// ErrQueueFull means a worker queue is at capacity; retry later.
	ErrQueueFull = NewError("queue full", true)
	// ErrWorkerShutdown means the scheduler no longer accepts or runs work.
	ErrWorkerShutdown = NewError("worker shutdown", false)
	// ErrSetup marks failures detected before any domain is processed.
	ErrSetup = NewError("setup failed", false)
	// ErrDomainAborted means a fail-fast policy stopped a domain after an adapter failure.
	ErrDomainAborted = NewError("domain aborted", false)
	// ErrEmptyDomain is returned for blank work list entries.
	ErrEmptyDomain = NewError("empty domain", false)
)

// SetupError wraps a setup failure so that errors.Is(err, ErrSetup) holds.
func SetupError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSetup, fmt.Sprintf(format, args...))
}

// PanicError is a recovered panic from a domain run.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
