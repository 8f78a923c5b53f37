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
	"net/url"
	"strings"

	"github.com/x-stp/rxurls/internal/util"
)

// Filter decides which stored records reach the final output file.
//
// By default a record is kept when its scheme is http or https and it
// contains the domain as a substring, case-insensitively. Substring matching
// also admits URLs that merely mention the domain, e.g. in a query string.
// StrictHost narrows this to URLs whose host is the domain or one of its
// subdomains, and whose path starts with the domain's path component if it
// has one.
type Filter struct {
	Domain     string
	StrictHost bool

	needle string
	host   string
	path   string
}

// NewFilter prepares a filter for domain.
func NewFilter(domain string, strictHost bool) *Filter {
	domain = strings.TrimSpace(domain)
	f := &Filter{
		Domain:     domain,
		StrictHost: strictHost,
		needle:     strings.ToLower(util.StripScheme(domain)),
		host:       util.Host(domain),
	}
	if i := strings.IndexByte(f.needle, '/'); i >= 0 {
		f.path = strings.TrimRight(f.needle[i:], "/")
	}
	return f
}

// Keep reports whether record belongs in the final output.
func (f *Filter) Keep(record string) bool {
	if !hasHTTPScheme(record) {
		return false
	}
	if !f.StrictHost {
		return strings.Contains(strings.ToLower(record), f.needle)
	}

	u, err := url.Parse(record)
	if err != nil {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host != f.host && !strings.HasSuffix(host, "."+f.host) {
		return false
	}
	if f.path != "" && !strings.HasPrefix(strings.ToLower(u.Path), f.path) {
		return false
	}
	return true
}

func hasHTTPScheme(record string) bool {
	if len(record) > len("https://") {
		record = record[:len("https://")]
	}
	lower := strings.ToLower(record)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
