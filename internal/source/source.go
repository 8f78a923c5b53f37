/*
Package source defines the discovery adapter contract and its concrete
implementations: external tools driven through os/exec and native clients
for archive, threat-intel and certificate sources, plus two in-process
crawlers seeded from live endpoints.

An adapter is an opaque producer of candidate URL strings for a domain. It
reports candidates through an emit callback and signals failure by returning
an error; it never touches the dedup store directly.
*/
package source

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
	"context"
	"errors"
	"fmt"
)

// Seeding describes what an adapter needs as input.
type Seeding int

const (
	// DomainSeeded adapters take the bare domain.
	DomainSeeded Seeding = iota
	// EndpointSeeded adapters take the live base URLs from the liveness cache.
	EndpointSeeded
)

func (s Seeding) String() string {
	switch s {
	case DomainSeeded:
		return "domain"
	case EndpointSeeded:
		return "endpoints"
	default:
		return fmt.Sprintf("Seeding(%d)", int(s))
	}
}

// Target is the input handed to an adapter for one domain.
type Target struct {
	Domain string
	// SeedFile is the liveness cache path; Seeds holds its lines.
	SeedFile string
	Seeds    []string
	// WorkDir receives scratch files; it defaults to the system temp dir.
	WorkDir string
}

// Adapter produces candidate URLs for a target. emit may be called from
// multiple goroutines and must not be retained after Discover returns.
type Adapter interface {
	Name() string
	Seeding() Seeding
	Discover(ctx context.Context, t Target, emit func(string)) error
}

// Checker is implemented by adapters that can verify their prerequisites
// (an installed binary, a token) before a run starts.
type Checker interface {
	Check() error
}

// ErrUnavailable marks a failed prerequisite check.
var ErrUnavailable = errors.New("adapter unavailable")

// AdapterError is the failure of one adapter run.
type AdapterError struct {
	Adapter string
	Timeout bool
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", e.Adapter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Adapter, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Reason returns a short label for metrics and logs.
func (e *AdapterError) Reason() string {
	switch {
	case e.Timeout:
		return "timeout"
	case errors.Is(e.Err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// Wrap turns err from adapter name into an *AdapterError. ctx is the
// per-adapter context; its deadline decides whether the failure is a timeout.
func Wrap(ctx context.Context, name string, err error) *AdapterError {
	if err == nil {
		return nil
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae
	}
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &AdapterError{Adapter: name, Timeout: timeout, Err: err}
}

// Func adapts a plain function to the Adapter interface.
type Func struct {
	AdapterName string
	Seed        Seeding
	Fn          func(ctx context.Context, t Target, emit func(string)) error
}

func (f *Func) Name() string     { return f.AdapterName }
func (f *Func) Seeding() Seeding { return f.Seed }

func (f *Func) Discover(ctx context.Context, t Target, emit func(string)) error {
	return f.Fn(ctx, t, emit)
}

// Static returns an adapter emitting a fixed list.
func Static(name string, urls ...string) *Func {
	return &Func{
		AdapterName: name,
		Fn: func(ctx context.Context, t Target, emit func(string)) error {
			for _, u := range urls {
				if err := ctx.Err(); err != nil {
					return err
				}
				emit(u)
			}
			return nil
		},
	}
}
