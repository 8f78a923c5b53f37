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
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/x-stp/rxurls/internal/client"
	"github.com/x-stp/rxurls/internal/util"
)

// Crawl is an in-process crawler seeded from the live endpoints. It follows
// links that stay on the domain or its subdomains and emits every URL it
// sees there.
type Crawl struct {
	Depth       int
	Parallelism int
	Delay       time.Duration
	client      *http.Client
}

// NewCrawl creates a crawl adapter.
func NewCrawl(c *http.Client, depth, parallelism int) *Crawl {
	if c == nil {
		c = client.GetHTTPClient()
	}
	return &Crawl{Depth: depth, Parallelism: parallelism, client: c}
}

func (c *Crawl) Name() string     { return "crawl" }
func (c *Crawl) Seeding() Seeding { return EndpointSeeded }

func (c *Crawl) Discover(ctx context.Context, t Target, emit func(string)) error {
	if len(t.Seeds) == 0 {
		return nil
	}
	host := util.Host(t.Domain)
	inScope := func(raw string) bool {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return false
		}
		h := strings.ToLower(u.Hostname())
		return h == host || strings.HasSuffix(h, "."+host)
	}

	col := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(c.Depth),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(client.DefaultUserAgent),
	)
	col.SetClient(c.client)
	parallelism := c.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if err := col.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		Delay:       c.Delay,
	}); err != nil {
		return fmt.Errorf("failed to set crawl limits: %w", err)
	}

	var (
		responses atomic.Int64
		errMu     sync.Mutex
		firstErr  error
	)
	col.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	col.OnResponse(func(r *colly.Response) {
		responses.Add(1)
		emit(r.Request.URL.String())
	})
	col.OnError(func(r *colly.Response, err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	})

	follow := func(e *colly.HTMLElement, attr string) {
		link := e.Request.AbsoluteURL(e.Attr(attr))
		if link == "" || !inScope(link) {
			return
		}
		emit(link)
		e.Request.Visit(link)
	}
	col.OnHTML("a[href], link[href]", func(e *colly.HTMLElement) { follow(e, "href") })
	col.OnHTML("script[src], iframe[src], img[src]", func(e *colly.HTMLElement) { follow(e, "src") })
	col.OnHTML("form[action]", func(e *colly.HTMLElement) { follow(e, "action") })

	for _, seed := range t.Seeds {
		if err := col.Visit(seed); err != nil && !errors.Is(err, colly.ErrAlreadyVisited) {
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		}
	}
	col.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if responses.Load() == 0 && firstErr != nil {
		return fmt.Errorf("crawl reached no page: %w", firstErr)
	}
	return nil
}
