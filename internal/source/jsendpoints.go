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
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/x-stp/rxurls/internal/client"
)

// endpointPattern matches quoted absolute paths in JavaScript source.
var endpointPattern = regexp.MustCompile(`["'\x60](/[a-zA-Z0-9_?&=/\-#.]*)["'\x60]`)

// JSEndpoints fetches each seed page, collects its scripts and extracts
// quoted absolute-path endpoints from them.
type JSEndpoints struct {
	MaxScripts int
	client     *http.Client
}

// NewJSEndpoints creates a JS endpoint adapter.
func NewJSEndpoints(c *http.Client, maxScripts int) *JSEndpoints {
	if c == nil {
		c = client.GetHTTPClient()
	}
	return &JSEndpoints{MaxScripts: maxScripts, client: c}
}

func (j *JSEndpoints) Name() string     { return "jsendpoints" }
func (j *JSEndpoints) Seeding() Seeding { return EndpointSeeded }

func (j *JSEndpoints) Discover(ctx context.Context, t Target, emit func(string)) error {
	seen := make(map[string]struct{})
	var (
		pagesOK  int
		firstErr error
	)
	for _, seed := range t.Seeds {
		if err := ctx.Err(); err != nil {
			return err
		}
		base, err := url.Parse(seed)
		if err != nil {
			continue
		}
		body, err := client.Fetch(ctx, j.client, seed)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pagesOK++

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			continue
		}
		var scripts []*url.URL
		doc.Find("script").Each(func(_ int, s *goquery.Selection) {
			src, ok := s.Attr("src")
			if !ok {
				extractEndpoints(s.Text(), base, emit)
				return
			}
			ref, err := base.Parse(strings.TrimSpace(src))
			if err != nil || (ref.Scheme != "http" && ref.Scheme != "https") {
				return
			}
			key := ref.String()
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			scripts = append(scripts, ref)
		})

		for i, script := range scripts {
			if j.MaxScripts > 0 && i >= j.MaxScripts {
				break
			}
			emit(script.String())
			js, err := client.Fetch(ctx, j.client, script.String())
			if err != nil {
				continue
			}
			extractEndpoints(string(js), script, emit)
		}
	}
	if pagesOK == 0 && firstErr != nil {
		return fmt.Errorf("no seed page could be fetched: %w", firstErr)
	}
	return nil
}

// extractEndpoints resolves every quoted path in src against origin's scheme
// and host.
func extractEndpoints(src string, origin *url.URL, emit func(string)) {
	for _, m := range endpointPattern.FindAllStringSubmatch(src, -1) {
		path := m[1]
		if path == "/" || strings.HasPrefix(path, "//") {
			continue
		}
		emit(origin.Scheme + "://" + origin.Host + path)
	}
}
