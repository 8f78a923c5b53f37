/*
Package probe finds the live HTTP base URLs of a domain and caches them in
<domain>_httpx.txt next to the domain's output. The cache is written once and
reused by later runs; endpoint-seeded adapters read their seeds from it.
*/
package probe

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
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/x-stp/rxurls/internal/client"
	rxio "github.com/x-stp/rxurls/internal/io"
	"github.com/x-stp/rxurls/internal/logging"
	"github.com/x-stp/rxurls/internal/metrics"
	"github.com/x-stp/rxurls/internal/util"
)

// CacheSuffix is appended to the domain token to form the cache file name.
const CacheSuffix = "_httpx.txt"

// Resolver reports whether a hostname exists in DNS. A false result with a
// nil error means the name definitively does not exist.
type Resolver interface {
	Exists(ctx context.Context, host string) (bool, error)
}

// DNSResolver queries a single DNS server with miekg/dns.
type DNSResolver struct {
	Server string
	client *dns.Client
}

// NewDNSResolver creates a resolver for server (host:port). An empty server
// uses the first nameserver from /etc/resolv.conf.
func NewDNSResolver(server string, timeout time.Duration) (*DNSResolver, error) {
	if server == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("failed to read resolver config: %w", err)
		}
		if len(conf.Servers) == 0 {
			return nil, errors.New("no nameservers in /etc/resolv.conf")
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	return &DNSResolver{
		Server: server,
		client: &dns.Client{Timeout: timeout},
	}, nil
}

// Exists sends an A query and treats any answer other than NXDOMAIN as existing.
func (r *DNSResolver) Exists(ctx context.Context, host string) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true
	resp, _, err := r.client.ExchangeContext(ctx, msg, r.Server)
	if err != nil {
		return false, err
	}
	switch resp.Rcode {
	case dns.RcodeNameError:
		return false, nil
	case dns.RcodeSuccess:
		return true, nil
	default:
		return false, fmt.Errorf("dns %s: %s", host, dns.RcodeToString[resp.Rcode])
	}
}

// Prober probes domains and manages their liveness cache files.
type Prober struct {
	dir      string
	client   *http.Client
	resolver Resolver
}

// New creates a Prober writing caches into dir. A nil resolver skips the DNS
// pre-check; a nil client uses client.ProbeConfig.
func New(dir string, c *http.Client, r Resolver) *Prober {
	if c == nil {
		c = client.New(client.ProbeConfig())
	}
	return &Prober{dir: dir, client: c, resolver: r}
}

// CachePath returns the liveness cache path for domain in dir. Dots are kept;
// only path-unsafe characters are rewritten.
func CachePath(dir, domain string) string {
	return filepath.Join(dir, util.SanitizeFilename(domain)+CacheSuffix)
}

// Result is the outcome of Ensure.
type Result struct {
	Path   string
	Seeds  []string
	Cached bool
}

// Ensure returns the live base URLs of domain, probing only when no cache
// file exists yet. A domain with no live endpoint yields an empty cache file,
// which is reused like any other.
func (p *Prober) Ensure(ctx context.Context, domain string) (Result, error) {
	path := CachePath(p.dir, domain)
	log := logging.ForDomain(domain)
	m := metrics.GetMetrics()

	if _, err := os.Stat(path); err == nil {
		seeds, err := rxio.ReadLines(path)
		if err != nil {
			return Result{}, err
		}
		log.Infof("Using cached liveness data for %s", domain)
		if metrics.IsMetricsEnabled() {
			m.ProbeCacheHits.Inc()
		}
		return Result{Path: path, Seeds: seeds, Cached: true}, nil
	}

	log.Infof("Probing liveness of %s", domain)
	seeds, result := p.probe(ctx, domain)
	if err := ctx.Err(); err != nil {
		// An interrupted probe must not leave a cache that looks authoritative.
		return Result{}, err
	}
	if metrics.IsMetricsEnabled() {
		m.ProbesTotal.WithLabelValues(result).Inc()
	}
	if err := rxio.WriteFileAtomic(path, seeds); err != nil {
		return Result{}, fmt.Errorf("failed to write liveness cache: %w", err)
	}
	log.WithField("count", len(seeds)).Infof("Found %d live endpoints for %s", len(seeds), domain)
	return Result{Path: path, Seeds: seeds}, nil
}

func (p *Prober) probe(ctx context.Context, domain string) ([]string, string) {
	host := util.Host(domain)
	if p.resolver != nil && net.ParseIP(host) == nil {
		exists, err := p.resolver.Exists(ctx, host)
		switch {
		case err != nil:
			logging.ForDomain(domain).Debugf("DNS pre-check failed, probing anyway: %v", err)
		case !exists:
			return nil, "nxdomain"
		}
	}

	target := strings.TrimRight(util.StripScheme(domain), "/")
	for _, scheme := range []string{"https", "http"} {
		base := scheme + "://" + target
		if p.alive(ctx, base) {
			return []string{base}, "live"
		}
	}
	return nil, "dead"
}

// alive reports whether base answers HTTP at all; any status code counts.
func (p *Prober) alive(ctx context.Context, base string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	return true
}
