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
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/x-stp/rxurls/internal/config"
)

// Registry maps adapter names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// NewDefaultRegistry registers the built-in tools, the native adapters and
// any user-defined tools from cfg. User tools replace built-ins of the same name.
func NewDefaultRegistry(cfg *config.Config, httpClient *http.Client) (*Registry, error) {
	r := NewRegistry()
	for _, spec := range BuiltinTools(cfg) {
		r.Register(NewExec(spec))
	}
	n := cfg.Native
	r.Register(NewWayback(httpClient, n.WaybackPageSize, n.WaybackMaxPages, n.RequestsPerSec))
	r.Register(NewOTX(httpClient, n.OTXPageSize, n.OTXMaxPages, n.RequestsPerSec))
	r.Register(NewCrtsh(httpClient, n.RequestsPerSec))
	r.Register(NewCrawl(httpClient, n.CrawlDepth, n.CrawlParallelism))
	r.Register(NewJSEndpoints(httpClient, n.MaxScripts))

	for _, tc := range cfg.Tools {
		spec, err := SpecFromConfig(tc)
		if err != nil {
			return nil, err
		}
		r.Register(NewExec(spec))
	}
	return r, nil
}

// Register adds a, replacing any adapter with the same name.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get looks up an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves names in order. Unknown names are an error.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	out := make([]Adapter, 0, len(names))
	var unknown []string
	for _, name := range names {
		a, ok := r.adapters[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, a)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown adapters: %s (known: %s)",
			strings.Join(unknown, ", "), strings.Join(r.Names(), ", "))
	}
	return out, nil
}

// Availability is the preflight result for one adapter.
type Availability struct {
	Name    string
	Seeding Seeding
	Err     error
}

// CheckAll runs the preflight check of every adapter that has one.
func CheckAll(adapters []Adapter) []Availability {
	out := make([]Availability, 0, len(adapters))
	for _, a := range adapters {
		av := Availability{Name: a.Name(), Seeding: a.Seeding()}
		if c, ok := a.(Checker); ok {
			av.Err = c.Check()
		}
		out = append(out, av)
	}
	return out
}
