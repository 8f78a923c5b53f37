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
	"strconv"
	"strings"
)

// DefaultWaybackURL is the Wayback Machine CDX endpoint.
const DefaultWaybackURL = "https://web.archive.org/cdx/search/cdx"

// Wayback queries the Wayback Machine CDX index, following resume keys.
type Wayback struct {
	BaseURL  string
	PageSize int
	MaxPages int
	fetcher  *politeFetcher
}

// NewWayback creates a Wayback adapter. rps <= 0 disables pacing.
func NewWayback(c *http.Client, pageSize, maxPages int, rps float64) *Wayback {
	return &Wayback{
		BaseURL:  DefaultWaybackURL,
		PageSize: pageSize,
		MaxPages: maxPages,
		fetcher:  newPoliteFetcher(c, rps),
	}
}

func (w *Wayback) Name() string     { return "wayback" }
func (w *Wayback) Seeding() Seeding { return DomainSeeded }

func (w *Wayback) Discover(ctx context.Context, t Target, emit func(string)) error {
	resumeKey := ""
	for page := 0; w.MaxPages <= 0 || page < w.MaxPages; page++ {
		body, err := w.fetcher.get(ctx, w.pageURL(t.Domain, resumeKey))
		if err != nil {
			return fmt.Errorf("wayback page %d: %w", page, err)
		}
		resumeKey = parseCDXPage(body, emit)
		if resumeKey == "" {
			return nil
		}
	}
	return nil
}

func (w *Wayback) pageURL(domain, resumeKey string) string {
	target := "*." + domain + "/*"
	if strings.Contains(domain, "/") {
		target = domain + "*"
	}
	q := url.Values{}
	q.Set("url", target)
	q.Set("fl", "original")
	q.Set("output", "text")
	q.Set("collapse", "urlkey")
	if w.PageSize > 0 {
		q.Set("limit", strconv.Itoa(w.PageSize))
		q.Set("showResumeKey", "true")
	}
	if resumeKey != "" {
		q.Set("resumeKey", resumeKey)
	}
	return w.BaseURL + "?" + q.Encode()
}

// parseCDXPage emits the URL lines of a text CDX page and returns the resume
// key, which the server appends after a blank line when more results exist.
func parseCDXPage(body []byte, emit func(string)) string {
	resumeKey := ""
	s := lineScanner(bytes.NewReader(body))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		switch {
		case line == "":
		case strings.Contains(line, "://"):
			emit(line)
		default:
			resumeKey = line
		}
	}
	return resumeKey
}
