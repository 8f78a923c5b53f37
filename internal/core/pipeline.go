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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/x-stp/rxurls/internal/config"
	rxio "github.com/x-stp/rxurls/internal/io"
	"github.com/x-stp/rxurls/internal/logging"
	"github.com/x-stp/rxurls/internal/metrics"
	"github.com/x-stp/rxurls/internal/probe"
	"github.com/x-stp/rxurls/internal/source"
	"github.com/x-stp/rxurls/internal/store"
	"github.com/x-stp/rxurls/internal/util"
)

// State is the position of a domain in its pipeline.
type State int

const (
	StateStart State = iota
	StateLivenessProbe
	StateStage
	StateFilterAndMerge
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateLivenessProbe:
		return "liveness_probe"
	case StateStage:
		return "stage"
	case StateFilterAndMerge:
		return "filter_and_merge"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Liveness supplies the live base URLs of a domain, probing or reusing a cache.
type Liveness interface {
	Ensure(ctx context.Context, domain string) (probe.Result, error)
}

// PipelineConfig holds the per-domain execution settings.
type PipelineConfig struct {
	OutputDir string
	Policy    config.Policy
	// ParallelAdapters > 1 runs that many adapters at once.
	ParallelAdapters int
	// StageDelay pauses between sequential stages and spaces parallel launches.
	StageDelay time.Duration
	// AdapterTimeout bounds one adapter run; <= 0 means no limit.
	AdapterTimeout time.Duration
	StrictHost     bool
}

// PipelineConfigFrom extracts the pipeline settings from cfg.
func PipelineConfigFrom(cfg *config.Config) PipelineConfig {
	return PipelineConfig{
		OutputDir:        cfg.OutputDir,
		Policy:           cfg.Policy,
		ParallelAdapters: cfg.ParallelAdapters,
		StageDelay:       cfg.StageDelay,
		AdapterTimeout:   cfg.AdapterTimeout,
		StrictHost:       cfg.StrictHost,
	}
}

// DomainResult is the outcome of one domain pipeline.
type DomainResult struct {
	Domain     string
	OutputFile string
	// Count is the number of lines in the final output file.
	Count int
	// Added is how many of those lines this run contributed.
	Added int
	// Failed lists adapters that failed or timed out, in run order.
	Failed []string
	// Skipped lists endpoint-seeded adapters skipped for lack of live endpoints.
	Skipped  []string
	Aborted  bool
	State    State
	Err      error
	Duration time.Duration
}

// OK reports whether a final output was produced.
func (r DomainResult) OK() bool { return r.Err == nil && !r.Aborted }

// Outcome labels the result for metrics and the batch summary.
func (r DomainResult) Outcome() string {
	switch {
	case r.Aborted:
		return "aborted"
	case errors.Is(r.Err, context.Canceled), errors.Is(r.Err, ErrWorkerShutdown):
		return "canceled"
	case r.Err != nil:
		return "error"
	case len(r.Failed) > 0:
		return "partial"
	default:
		return "ok"
	}
}

// OutputPath returns the final output file for domain in dir.
func OutputPath(dir, domain string) string {
	return filepath.Join(dir, util.SanitizeDomain(domain)+".txt")
}

// TempPath returns the dedup store file for domain in dir.
func TempPath(dir, domain string) string {
	return OutputPath(dir, domain) + TempSuffix
}

// Pipeline runs the configured adapters for one domain at a time and merges
// their output into the domain's final file.
type Pipeline struct {
	cfg      PipelineConfig
	adapters []source.Adapter
	liveness Liveness
}

// NewPipeline creates a pipeline. adapters run in the given order; a nil
// liveness skips probing, which leaves endpoint-seeded adapters without seeds.
func NewPipeline(cfg PipelineConfig, adapters []source.Adapter, liveness Liveness) *Pipeline {
	if cfg.Policy == "" {
		cfg.Policy = config.PolicyIsolate
	}
	return &Pipeline{cfg: cfg, adapters: adapters, liveness: liveness}
}

type stageOutcome struct {
	adapter    string
	candidates int
	added      int
	skipped    bool
	err        *source.AdapterError
	ioErr      error
}

// Run processes domain. Adapter failures never escape as panics; they are
// reported through the result according to the configured policy. When ctx is
// canceled the dedup store is flushed and kept so the next run resumes.
func (p *Pipeline) Run(ctx context.Context, domain string) (res DomainResult) {
	start := time.Now()
	domain = strings.TrimSpace(domain)
	res = DomainResult{Domain: domain, State: StateStart}
	defer func() {
		res.Duration = time.Since(start)
		metrics.GetMetrics().ObserveDomain(res.Outcome(), res.Duration)
	}()

	if domain == "" {
		res.Err = ErrEmptyDomain
		return res
	}
	log := logging.ForDomain(domain)
	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		res.Err = fmt.Errorf("failed to create output directory: %w", err)
		return res
	}
	res.OutputFile = OutputPath(p.cfg.OutputDir, domain)

	target := source.Target{Domain: domain}
	if p.liveness != nil {
		res.State = StateLivenessProbe
		lr, err := p.liveness.Ensure(ctx, domain)
		switch {
		case ctx.Err() != nil:
			res.Err = ctx.Err()
			return res
		case err != nil:
			log.Warnf("Liveness probe failed, endpoint-seeded adapters will be skipped: %v", err)
		default:
			target.SeedFile = lr.Path
			target.Seeds = lr.Seeds
		}
	}

	st, err := store.Open(ctx, TempPath(p.cfg.OutputDir, domain))
	if err != nil {
		res.Err = err
		return res
	}
	if n := st.Count(); n > 0 {
		log.Infof("Resuming %s with %d records from an interrupted run", domain, n)
	}
	previous, err := rxio.CountLines(res.OutputFile)
	if err != nil {
		p.closeStore(st, domain)
		res.Err = err
		return res
	}

	res.State = StateStage
	var outcomes []stageOutcome
	if p.cfg.ParallelAdapters > 1 {
		outcomes = p.runParallel(ctx, st, target)
	} else {
		outcomes = p.runSequential(ctx, st, target)
	}

	var ioErr error
	var abortOn *source.AdapterError
	for _, o := range outcomes {
		switch {
		case o.skipped:
			res.Skipped = append(res.Skipped, o.adapter)
		case o.ioErr != nil:
			if ioErr == nil {
				ioErr = o.ioErr
			}
		case o.err != nil:
			res.Failed = append(res.Failed, o.adapter)
			if abortOn == nil || abortOn.Reason() == "canceled" {
				abortOn = o.err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		log.Warnf("Interrupted; %d records kept for the next run", st.Count())
		p.closeStore(st, domain)
		res.Err = err
		return res
	}
	if ioErr != nil {
		p.closeStore(st, domain)
		res.State = StateAborted
		res.Err = ioErr
		return res
	}
	if abortOn != nil && p.cfg.Policy == config.PolicyFailFast {
		log.Errorf("Aborting %s: %v", domain, abortOn)
		p.closeStore(st, domain)
		res.State = StateAborted
		res.Aborted = true
		res.Err = fmt.Errorf("%w: %v", ErrDomainAborted, abortOn)
		return res
	}

	res.State = StateFilterAndMerge
	filter := NewFilter(domain, p.cfg.StrictHost)
	count, err := st.DrainTo(res.OutputFile, filter.Keep)
	if err != nil {
		p.closeStore(st, domain)
		res.Err = fmt.Errorf("failed to merge results: %w", err)
		return res
	}
	res.Count = count
	res.Added = max(count-previous, 0)
	res.State = StateDone
	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().StoreRecords.DeleteLabelValues(domain)
	}
	log.WithField("count", count).Infof("Results saved to %s", res.OutputFile)
	return res
}

func (p *Pipeline) closeStore(st *store.Store, domain string) {
	if err := st.Close(); err != nil {
		logging.ForDomain(domain).Errorf("Failed to close dedup store: %v", err)
	}
}

func (p *Pipeline) failFast() bool { return p.cfg.Policy == config.PolicyFailFast }

func (p *Pipeline) runSequential(ctx context.Context, st *store.Store, target source.Target) []stageOutcome {
	out := make([]stageOutcome, 0, len(p.adapters))
	for i, a := range p.adapters {
		if ctx.Err() != nil {
			break
		}
		o := p.runStage(ctx, st, a, target)
		out = append(out, o)
		if o.ioErr != nil || (o.err != nil && p.failFast()) {
			break
		}
		if i < len(p.adapters)-1 && !o.skipped && p.cfg.StageDelay > 0 {
			if err := sleepCtx(ctx, p.cfg.StageDelay); err != nil {
				break
			}
		}
	}
	return out
}

func (p *Pipeline) runParallel(ctx context.Context, st *store.Store, target source.Target) []stageOutcome {
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := rate.Inf
	if p.cfg.StageDelay > 0 {
		limit = rate.Every(p.cfg.StageDelay)
	}
	limiter := rate.NewLimiter(limit, 1)
	sem := make(chan struct{}, p.cfg.ParallelAdapters)

	out := make([]stageOutcome, len(p.adapters))
	launched := make([]bool, len(p.adapters))
	var wg sync.WaitGroup

launch:
	for i, a := range p.adapters {
		if p.skip(a, target) {
			out[i] = p.runStage(stageCtx, st, a, target)
			launched[i] = true
			continue
		}
		if err := limiter.Wait(stageCtx); err != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-stageCtx.Done():
			break launch
		}
		launched[i] = true
		wg.Add(1)
		go func(i int, a source.Adapter) {
			defer wg.Done()
			defer func() { <-sem }()
			o := p.runStage(stageCtx, st, a, target)
			out[i] = o
			if o.ioErr != nil || (o.err != nil && p.failFast()) {
				cancel()
			}
		}(i, a)
	}
	wg.Wait()

	result := make([]stageOutcome, 0, len(out))
	for i, o := range out {
		if launched[i] {
			result = append(result, o)
		}
	}
	return result
}

// skip reports whether a needs live endpoints that the target lacks.
func (p *Pipeline) skip(a source.Adapter, t source.Target) bool {
	return a.Seeding() == source.EndpointSeeded && len(t.Seeds) == 0
}

// runStage runs one adapter and, if it succeeds, merges its output into the
// store. Output of a failed run is discarded.
func (p *Pipeline) runStage(ctx context.Context, st *store.Store, a source.Adapter, t source.Target) stageOutcome {
	name := a.Name()
	log := logging.ForDomain(t.Domain).WithField("stage", name)
	m := metrics.GetMetrics()
	o := stageOutcome{adapter: name}

	if p.skip(a, t) {
		log.Infof("Skipping %s: no live endpoints for %s", name, t.Domain)
		if metrics.IsMetricsEnabled() {
			m.AdaptersSkipped.WithLabelValues(name).Inc()
		}
		o.skipped = true
		return o
	}

	var actx context.Context
	var cancel context.CancelFunc
	if p.cfg.AdapterTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, p.cfg.AdapterTimeout)
	} else {
		actx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var mu sync.Mutex
	var buf []string
	emit := func(rec string) {
		mu.Lock()
		buf = append(buf, rec)
		mu.Unlock()
	}

	log.Debugf("Running %s", name)
	started := time.Now()
	err := discover(actx, a, t, emit)
	elapsed := time.Since(started)

	mu.Lock()
	candidates := buf
	buf = nil
	mu.Unlock()
	o.candidates = len(candidates)

	if err != nil {
		o.err = source.Wrap(actx, name, err)
		log.Warnf("%s failed after %s: %v", name, elapsed.Round(time.Millisecond), o.err.Err)
		m.ObserveStage(name, elapsed, o.candidates, 0, o.err.Reason())
		return o
	}

	for _, rec := range candidates {
		added, err := st.AddIfAbsent(rec)
		if err != nil {
			o.ioErr = fmt.Errorf("failed to store output of %s: %w", name, err)
			return o
		}
		if added {
			o.added++
		}
	}
	if err := st.Flush(); err != nil {
		o.ioErr = fmt.Errorf("failed to flush output of %s: %w", name, err)
		return o
	}

	total := st.Count()
	log.WithField("count", total).Infof("Found %d URLs after %s", total, name)
	m.ObserveStage(name, elapsed, o.candidates, o.added, "")
	if metrics.IsMetricsEnabled() {
		m.StoreRecords.WithLabelValues(t.Domain).Set(float64(total))
	}
	return o
}

// discover calls the adapter, turning a panic into an error.
func discover(ctx context.Context, a source.Adapter, t source.Target, emit func(string)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return a.Discover(ctx, t, emit)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
