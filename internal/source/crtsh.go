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
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/x-stp/rxurls/internal/util"
)

// DefaultCrtshURL is the crt.sh search endpoint.
const DefaultCrtshURL = "https://crt.sh/"

type crtshEntry struct {
	NameValue  string `json:"name_value"`
	CommonName string `json:"common_name"`
}

// Crtsh derives candidate URLs from certificate transparency: every
// hostname on a certificate for the domain becomes https://<host>/.
type Crtsh struct {
	BaseURL string
	fetcher *politeFetcher
}

// NewCrtsh creates a crt.sh adapter. rps <= 0 disables pacing.
func NewCrtsh(c *http.Client, rps float64) *Crtsh {
	return &Crtsh{BaseURL: DefaultCrtshURL, fetcher: newPoliteFetcher(c, rps)}
}

func (c *Crtsh) Name() string     { return "crtsh" }
func (c *Crtsh) Seeding() Seeding { return DomainSeeded }

func (c *Crtsh) Discover(ctx context.Context, t Target, emit func(string)) error {
	host := util.Host(t.Domain)
	q := url.Values{}
	q.Set("q", "%."+host)
	q.Set("output", "json")
	body, err := c.fetcher.get(ctx, c.BaseURL+"?"+q.Encode())
	if err != nil {
		return fmt.Errorf("crt.sh: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if body[0] == '<' {
		return fmt.Errorf("crt.sh: unexpected HTML response")
	}
	var entries []crtshEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("crt.sh: failed to decode: %w", err)
	}

	hosts := make(map[string]struct{})
	for _, e := range entries {
		for _, name := range strings.Split(e.NameValue+"\n"+e.CommonName, "\n") {
			name = NormalizeHostname(name)
			if name == "" || (name != host && !strings.HasSuffix(name, "."+host)) {
				continue
			}
			hosts[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(hosts))
	for h := range hosts {
		sorted = append(sorted, h)
	}
	sort.Strings(sorted)
	for _, h := range sorted {
		emit("https://" + h + "/")
	}
	return nil
}

// NormalizeHostname lowercases a certificate name, strips surrounding dots
// and a leading wildcard label, and returns "" for names that cannot be a
// DNS hostname.
func NormalizeHostname(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "*.")
	name = strings.Trim(name, ".")
	if name == "" || len(name) > 253 || strings.ContainsAny(name, " \t/:@*") {
		return ""
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return ""
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
				return ""
			}
		}
	}
	return name
}
