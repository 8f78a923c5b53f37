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
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/x-stp/rxurls/internal/client"
)

const (
	maxFetchAttempts = 3
	baseRetryDelay   = 2 * time.Second
)

// politeFetcher paces requests to one upstream service and retries rate
// limiting and server errors with linear backoff.
type politeFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

func newPoliteFetcher(c *http.Client, rps float64) *politeFetcher {
	if c == nil {
		c = client.GetHTTPClient()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &politeFetcher{client: c, limiter: rate.NewLimiter(limit, 1)}
}

func (f *politeFetcher) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * baseRetryDelay):
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, err := client.Fetch(ctx, f.client, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var se *client.StatusError
		if !errors.As(err, &se) || !se.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}
