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

	jsoniter "github.com/json-iterator/go"

	"github.com/x-stp/rxurls/internal/client"
	"github.com/x-stp/rxurls/internal/util"
)

// DefaultOTXURL is the AlienVault OTX API root.
const DefaultOTXURL = "https://otx.alienvault.com"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type otxPage struct {
	HasNext bool `json:"has_next"`
	URLList []struct {
		URL string `json:"url"`
	} `json:"url_list"`
}

// OTX pages through the AlienVault OTX url_list for a domain.
type OTX struct {
	BaseURL  string
	PageSize int
	MaxPages int
	fetcher  *politeFetcher
}

// NewOTX creates an OTX adapter. rps <= 0 disables pacing.
func NewOTX(c *http.Client, pageSize, maxPages int, rps float64) *OTX {
	return &OTX{
		BaseURL:  DefaultOTXURL,
		PageSize: pageSize,
		MaxPages: maxPages,
		fetcher:  newPoliteFetcher(c, rps),
	}
}

func (o *OTX) Name() string     { return "otx" }
func (o *OTX) Seeding() Seeding { return DomainSeeded }

func (o *OTX) Discover(ctx context.Context, t Target, emit func(string)) error {
	host := util.Host(t.Domain)
	for page := 1; o.MaxPages <= 0 || page <= o.MaxPages; page++ {
		u := fmt.Sprintf("%s/api/v1/indicators/domain/%s/url_list?limit=%d&page=%d",
			o.BaseURL, url.PathEscape(host), o.PageSize, page)
		body, err := o.fetcher.get(ctx, u)
		if err != nil {
			var se *client.StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
				return nil
			}
			return fmt.Errorf("otx page %d: %w", page, err)
		}
		var p otxPage
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("otx page %d: failed to decode: %w", page, err)
		}
		for _, entry := range p.URLList {
			if entry.URL != "" {
				emit(entry.URL)
			}
		}
		if !p.HasNext || len(p.URLList) == 0 {
			return nil
		}
	}
	return nil
}
