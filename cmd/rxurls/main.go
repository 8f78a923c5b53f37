/*
Package main is the entry point for the rxurls command-line application.

rxurls discovers the URLs associated with a target domain by running a chain
of discovery adapters (external tools such as waybackurls, gau and katana, or
in-process archive, crawler and JavaScript scanners) and merging their output
into one sorted, deduplicated list per domain, plus an append-only run index.

	rxurls -d example.com -o out/
	rxurls -f domains.txt -o out/ --workers 4
	rxurls adapters

Interrupted runs resume: each domain keeps its dedup store on disk until the
final merge succeeds, and liveness probe results are cached per domain.
A non-zero exit status is reserved for setup errors; per-domain failures are
reported in the summary.
*/
package main

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
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/x-stp/rxurls/internal/client"
	"github.com/x-stp/rxurls/internal/config"
	"github.com/x-stp/rxurls/internal/core"
	"github.com/x-stp/rxurls/internal/logging"
	"github.com/x-stp/rxurls/internal/metrics"
	"github.com/x-stp/rxurls/internal/probe"
	"github.com/x-stp/rxurls/internal/source"
)

var (
	configFile       string
	domain           string
	domainList       string
	outputDir        string
	policy           string
	parallelAdapters int
	workers          int
	stageDelay       time.Duration
	adapterTimeout   time.Duration
	strictHost       bool
	adapterNames     []string
	skipMissing      bool
	githubToken      string
	metricsAddr      string
	showProgress     bool
	debug            bool
)

var rootCmd = &cobra.Command{
	Use:           "rxurls",
	Short:         "rxurls - URL discovery and aggregation for target domains",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd)
	},
}

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List the configured adapters and whether their prerequisites are met",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAdapters(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML configuration file")
	pf.StringSliceVar(&adapterNames, "adapters", nil, "Adapters to run, in order (presets: default, native)")
	pf.StringVar(&githubToken, "github-token", "", "GitHub token for github-endpoints (default $GITHUB_TOKEN)")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")

	f := rootCmd.Flags()
	f.StringVarP(&domain, "domain", "d", "", "Target domain")
	f.StringVarP(&domainList, "file", "f", "", "File with one target domain per line")
	f.StringVarP(&outputDir, "output", "o", ".", "Output directory")
	f.StringVar(&policy, "policy", string(config.PolicyIsolate), "Adapter failure policy: isolate or failfast")
	f.IntVar(&parallelAdapters, "parallel-adapters", 1, "Adapters to run concurrently per domain")
	f.IntVar(&workers, "workers", config.DefaultWorkers, "Domains to process concurrently")
	f.DurationVar(&stageDelay, "stage-delay", config.DefaultStageDelay, "Pause between adapter stages")
	f.DurationVar(&adapterTimeout, "adapter-timeout", config.DefaultAdapterTimeout, "Time limit for a single adapter run")
	f.BoolVar(&strictHost, "strict-host", false, "Keep only URLs whose host is the domain or a subdomain of it")
	f.BoolVar(&skipMissing, "skip-missing", false, "Drop adapters whose tools are missing instead of failing")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.BoolVar(&showProgress, "progress", false, "Show a progress bar over the work list")

	rootCmd.AddCommand(adaptersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, then applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			return nil, core.SetupError("%v", err)
		}
		cfg = loaded
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("output") {
		cfg.OutputDir = outputDir
	}
	if changed("policy") {
		cfg.Policy = config.Policy(strings.ToLower(policy))
	}
	if changed("parallel-adapters") {
		cfg.ParallelAdapters = parallelAdapters
	}
	if changed("workers") {
		cfg.Workers = workers
	}
	if changed("stage-delay") {
		cfg.StageDelay = stageDelay
	}
	if changed("adapter-timeout") {
		cfg.AdapterTimeout = adapterTimeout
	}
	if changed("strict-host") {
		cfg.StrictHost = strictHost
	}
	if changed("adapters") {
		cfg.Adapters = adapterNames
	}
	if changed("skip-missing") {
		cfg.SkipMissing = skipMissing
	}
	if changed("github-token") {
		cfg.GithubToken = githubToken
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if changed("progress") {
		cfg.Progress = showProgress
	}
	if changed("debug") {
		cfg.Debug = debug
	}

	logging.Configure(cfg.Debug, nil)
	if err := cfg.Validate(); err != nil {
		return nil, core.SetupError("invalid configuration: %v", err)
	}
	return cfg, nil
}

func selectAdapters(cfg *config.Config) ([]source.Adapter, error) {
	client.InitHTTPClient(nil)
	registry, err := source.NewDefaultRegistry(cfg, client.GetHTTPClient())
	if err != nil {
		return nil, core.SetupError("%v", err)
	}
	adapters, err := registry.Select(cfg.ExpandAdapters())
	if err != nil {
		return nil, core.SetupError("%v", err)
	}
	return adapters, nil
}

// preflight drops or rejects adapters whose prerequisites are missing.
func preflight(adapters []source.Adapter, skip bool) ([]source.Adapter, error) {
	var usable []source.Adapter
	var missing []string
	for i, av := range source.CheckAll(adapters) {
		if av.Err == nil {
			usable = append(usable, adapters[i])
			continue
		}
		if skip {
			logging.Logger.Warnf("Skipping adapter %s: %v", av.Name, av.Err)
			continue
		}
		missing = append(missing, av.Err.Error())
	}
	if len(missing) > 0 {
		return nil, core.SetupError("missing prerequisites (use --skip-missing to run without them):\n  %s",
			strings.Join(missing, "\n  "))
	}
	if len(usable) == 0 {
		return nil, core.SetupError("no usable adapters")
	}
	return usable, nil
}

func checkOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return core.SetupError("cannot create output directory: %v", err)
	}
	f, err := os.CreateTemp(dir, ".rxurls-write-check-*")
	if err != nil {
		return core.SetupError("output directory %s is not writable: %v", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return nil
}

func newProber(cfg *config.Config) *probe.Prober {
	var resolver probe.Resolver
	if !cfg.Probe.SkipDNS {
		r, err := probe.NewDNSResolver(cfg.Probe.Resolver, cfg.Probe.DNSTimeout)
		if err != nil {
			logging.Logger.Warnf("DNS pre-check disabled: %v", err)
		} else {
			resolver = r
		}
	}
	pc := client.ProbeConfig()
	if cfg.Probe.HTTPTimeout > 0 {
		pc.RequestTimeout = cfg.Probe.HTTPTimeout
	}
	return probe.New(cfg.OutputDir, client.New(pc), resolver)
}

func runBatch(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	domains, err := core.LoadWorkList(domain, domainList)
	if err != nil {
		return err
	}
	if err := checkOutputDir(cfg.OutputDir); err != nil {
		return err
	}
	adapters, err := selectAdapters(cfg)
	if err != nil {
		return err
	}
	if adapters, err = preflight(adapters, cfg.SkipMissing); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		metrics.EnableMetrics()
		if err := metrics.StartMetricsServer(cfg.MetricsAddr); err != nil {
			return core.SetupError("failed to start metrics server: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metrics.ShutdownMetricsServer(ctx)
		}()
	}

	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	logging.Logger.Infof("Processing %d domain(s) with adapters: %s", len(domains), strings.Join(names, ", "))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)
	go func() {
		select {
		case <-signalChan:
			logging.Logger.Warn("Interrupt received, finishing up; progress is kept for the next run")
			cancel()
		case <-ctx.Done():
		}
	}()

	pipeline := core.NewPipeline(core.PipelineConfigFrom(cfg), adapters, newProber(cfg))
	index := core.NewRunIndex(filepath.Join(cfg.OutputDir, cfg.IndexFile))
	batch := core.NewBatch(pipeline, index, cfg.Workers)

	if cfg.Progress {
		bar := progressbar.NewOptions(len(domains),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Processing domains..."),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
		batch.OnResult = func(core.DomainResult) { bar.Add(1) }
		defer bar.Finish()
	}

	summary := batch.Run(ctx, domains)
	printSummary(summary, index.Path())
	return nil
}

func printSummary(s core.BatchSummary, indexPath string) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println()
	fmt.Printf("--- Run Summary ---\n")
	for _, r := range s.Results {
		switch r.Outcome() {
		case "ok":
			fmt.Printf(" %s %s: %d URLs (%d new) -> %s\n", green("[+]"), r.Domain, r.Count, r.Added, r.OutputFile)
		case "partial":
			fmt.Printf(" %s %s: %d URLs (%d new), failed: %s\n", yellow("[~]"), r.Domain, r.Count, r.Added, strings.Join(r.Failed, ","))
		case "canceled":
			fmt.Printf(" %s %s: canceled\n", yellow("[-]"), r.Domain)
		default:
			fmt.Printf(" %s %s: %v\n", red("[!]"), r.Domain, r.Err)
		}
	}
	fmt.Printf("   Domains: %d (%s ok, %s partial, %s failed, %s canceled)\n",
		len(s.Results),
		green(s.Succeeded), yellow(s.Partial), red(s.Failed), yellow(s.Canceled))
	fmt.Printf("   Elapsed: %v\n", s.Duration.Round(time.Millisecond))
	fmt.Printf("     Index: %s\n", indexPath)
	fmt.Printf("-------------------\n")
}

func listAdapters(cmd *cobra.Command) error {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			return core.SetupError("%v", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("github-token") {
		cfg.GithubToken = githubToken
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = debug
	}
	if cmd.Flags().Changed("adapters") {
		cfg.Adapters = adapterNames
	}
	logging.Configure(cfg.Debug, nil)

	registry, err := source.NewDefaultRegistry(cfg, client.GetHTTPClient())
	if err != nil {
		return core.SetupError("%v", err)
	}
	selected := make(map[string]bool)
	for _, name := range cfg.ExpandAdapters() {
		selected[name] = true
	}

	var adapters []source.Adapter
	for _, name := range registry.Names() {
		a, _ := registry.Get(name)
		adapters = append(adapters, a)
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	var unavailable int
	for _, av := range source.CheckAll(adapters) {
		mark := " "
		if selected[av.Name] {
			mark = "*"
		}
		status := green("available")
		if av.Err != nil {
			status = red(strings.TrimPrefix(av.Err.Error(), av.Name+": "))
			if selected[av.Name] {
				unavailable++
			}
		}
		fmt.Printf("%s %-18s %-10s %s\n", mark, av.Name, av.Seeding, status)
	}
	fmt.Printf("\n* selected for runs; %d selected adapter(s) unavailable\n", unavailable)
	return nil
}
