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
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	rxio "github.com/x-stp/rxurls/internal/io"
	"github.com/x-stp/rxurls/internal/logging"
	"github.com/x-stp/rxurls/internal/util"
)

// Runner processes one domain.
type Runner interface {
	Run(ctx context.Context, domain string) DomainResult
}

// LoadWorkList builds the ordered list of domains from a single domain and/or
// a newline-delimited file. Blank lines and lines starting with '#' are
// ignored. An unreadable file or an empty list is a setup error.
func LoadWorkList(domain, listFile string) ([]string, error) {
	var domains []string
	if d := strings.TrimSpace(domain); d != "" {
		domains = append(domains, d)
	}
	if listFile != "" {
		f, err := os.Open(listFile)
		if err != nil {
			return nil, SetupError("cannot read domain list: %v", err)
		}
		defer f.Close()
		_, err = rxio.ScanLines(f, func(line string) {
			if !strings.HasPrefix(line, "#") {
				domains = append(domains, line)
			}
		})
		if err != nil {
			return nil, SetupError("cannot read domain list %s: %v", listFile, err)
		}
	}
	if len(domains) == 0 {
		return nil, SetupError("no domains to process")
	}
	return domains, nil
}

// IsPublicSuffix reports whether domain is itself a public suffix such as
// "co.uk" or "github.io", which is almost always a typo in a work list.
func IsPublicSuffix(domain string) bool {
	host := util.Host(domain)
	if host == "" || net.ParseIP(host) != nil {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	return suffix == host
}

// BatchSummary aggregates the results of a batch, in work list order.
type BatchSummary struct {
	Results   []DomainResult
	Succeeded int
	Partial   int
	Failed    int
	Canceled  int
	Duration  time.Duration
}

func (s *BatchSummary) add(r DomainResult) {
	switch r.Outcome() {
	case "ok":
		s.Succeeded++
	case "partial":
		s.Partial++
	case "canceled":
		s.Canceled++
	default:
		s.Failed++
	}
}

// Batch drives a work list through a Runner on the worker pool and records
// every completed domain in the run index. A failing or panicking domain is
// reported and the batch moves on.
type Batch struct {
	runner  Runner
	index   *RunIndex
	workers int

	// OnResult, if set, is called once per domain as it finishes. Calls are
	// serialized.
	OnResult func(DomainResult)

	reportMu sync.Mutex
}

// NewBatch creates a batch processing up to workers domains at once.
func NewBatch(runner Runner, index *RunIndex, workers int) *Batch {
	if workers <= 0 {
		workers = 1
	}
	return &Batch{runner: runner, index: index, workers: workers}
}

// shardKey maps domains sharing an output or temp file to the same worker,
// so "a.b" and "a_b" never run at once.
func shardKey(domain string) string {
	return util.SanitizeDomain(strings.ToLower(strings.TrimSpace(domain)))
}

// Run processes domains and returns once every domain has finished or been
// dropped by cancellation. With one worker domains run, and are indexed, in
// list order.
func (b *Batch) Run(ctx context.Context, domains []string) BatchSummary {
	start := time.Now()
	results := make([]DomainResult, len(domains))
	sched := NewScheduler(ctx, b.workers, len(domains))

	for i, domain := range domains {
		if IsPublicSuffix(domain) {
			logging.ForDomain(domain).Warnf("%s is a public suffix; results will span unrelated sites", domain)
		}
		callback := func(ctx context.Context) error {
			results[i] = b.process(ctx, domain)
			return nil
		}
		done := func(err error) {
			if err != nil && results[i].Domain == "" {
				// The run panicked or never started.
				results[i] = DomainResult{Domain: domain, Err: err}
			}
			b.report(results[i])
		}
		if err := sched.SubmitWait(ctx, shardKey(domain), callback, done); err != nil {
			results[i] = DomainResult{Domain: domain, Err: err}
			b.report(results[i])
		}
	}

	sched.Wait()
	sched.Shutdown()

	summary := BatchSummary{Results: results, Duration: time.Since(start)}
	for _, r := range results {
		summary.add(r)
	}
	return summary
}

// process runs one domain and appends its index entry when it produced output.
func (b *Batch) process(ctx context.Context, domain string) DomainResult {
	res := b.runner.Run(ctx, domain)
	if res.OK() && b.index != nil {
		if err := b.index.Append(res.Domain, res.Count, res.Failed); err != nil {
			res.Err = err
		}
	}
	return res
}

func (b *Batch) report(r DomainResult) {
	log := logging.ForDomain(r.Domain).WithField("count", r.Count)
	switch r.Outcome() {
	case "ok":
		log.Infof("Completed %s: %d URLs (%d new)", r.Domain, r.Count, r.Added)
	case "partial":
		log.Warnf("Completed %s with failed adapters %s: %d URLs", r.Domain, strings.Join(r.Failed, ","), r.Count)
	case "canceled":
		log.Warnf("Canceled %s", r.Domain)
	default:
		log.Errorf("Failed %s: %v", r.Domain, r.Err)
	}

	if b.OnResult != nil {
		b.reportMu.Lock()
		b.OnResult(r)
		b.reportMu.Unlock()
	}
}
