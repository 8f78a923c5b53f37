/*
Package config holds the run configuration for rxurls: defaults, the optional
YAML file and validation. Command-line flags are applied on top by the CLI.
*/
package config

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
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy selects how a failing adapter affects its domain.
type Policy string

const (
	// PolicyIsolate logs the failure, drops that adapter's output and continues.
	PolicyIsolate Policy = "isolate"
	// PolicyFailFast cancels the remaining stages and aborts the domain.
	PolicyFailFast Policy = "failfast"
)

// Seed input modes for external tools.
const (
	StdinNone   = ""
	StdinDomain = "domain"
	StdinSeeds  = "seeds"
)

const (
	DefaultStageDelay     = 5 * time.Second
	DefaultAdapterTimeout = 30 * time.Minute
	DefaultWorkers        = 1
	DefaultIndexFile      = "index.txt"
)

// DefaultAdapters is the stage order used when none is configured.
var DefaultAdapters = []string{
	"waybackurls", "gau", "hakrawler", "github-endpoints", "cariddi",
	"gospider", "katana", "gourlex", "orwa", "urlfinder",
}

// NativeAdapters are the adapters implemented in-process; the "native"
// preset in Adapters expands to this list.
var NativeAdapters = []string{"wayback", "otx", "crtsh", "crawl", "jsendpoints"}

// ToolConfig describes an external discovery tool. Args may reference
// {domain}, {seeds} and {tmp}.
type ToolConfig struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Args    []string `yaml:"args"`
	Stdin   string   `yaml:"stdin"`
	Seeded  bool     `yaml:"seeded"`
	Extract string   `yaml:"extract"`
	// MustContainDomain keeps only lines containing the domain.
	MustContainDomain bool `yaml:"must_contain_domain"`
	// OutputFile makes the tool write to {tmp}; that file is read then removed.
	OutputFile bool     `yaml:"output_file"`
	Env        []string `yaml:"env"`
}

// ProbeConfig tunes the liveness probe.
type ProbeConfig struct {
	// Resolver is a host:port DNS server; empty uses /etc/resolv.conf.
	Resolver    string        `yaml:"resolver"`
	DNSTimeout  time.Duration `yaml:"dns_timeout"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	SkipDNS     bool          `yaml:"skip_dns"`
}

// NativeConfig tunes the in-process adapters.
type NativeConfig struct {
	WaybackPageSize  int     `yaml:"wayback_page_size"`
	WaybackMaxPages  int     `yaml:"wayback_max_pages"`
	OTXPageSize      int     `yaml:"otx_page_size"`
	OTXMaxPages      int     `yaml:"otx_max_pages"`
	RequestsPerSec   float64 `yaml:"requests_per_second"`
	CrawlDepth       int     `yaml:"crawl_depth"`
	CrawlParallelism int     `yaml:"crawl_parallelism"`
	MaxScripts       int     `yaml:"max_scripts"`
}

// Config is the full run configuration.
type Config struct {
	OutputDir        string        `yaml:"output_dir"`
	IndexFile        string        `yaml:"index_file"`
	Policy           Policy        `yaml:"policy"`
	ParallelAdapters int           `yaml:"parallel_adapters"`
	Workers          int           `yaml:"workers"`
	StageDelay       time.Duration `yaml:"stage_delay"`
	AdapterTimeout   time.Duration `yaml:"adapter_timeout"`
	StrictHost       bool          `yaml:"strict_host"`
	Adapters         []string      `yaml:"adapters"`
	SkipMissing      bool          `yaml:"skip_missing"`
	GithubToken      string        `yaml:"github_token"`
	OrwaScript       string        `yaml:"orwa_script"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	Progress         bool          `yaml:"progress"`
	Debug            bool          `yaml:"debug"`

	Probe  ProbeConfig  `yaml:"probe"`
	Native NativeConfig `yaml:"native"`
	Tools  []ToolConfig `yaml:"tools"`
}

// Default returns the configuration matching the reference tool chain.
func Default() *Config {
	return &Config{
		OutputDir:        ".",
		IndexFile:        DefaultIndexFile,
		Policy:           PolicyIsolate,
		ParallelAdapters: 1,
		Workers:          DefaultWorkers,
		StageDelay:       DefaultStageDelay,
		AdapterTimeout:   DefaultAdapterTimeout,
		Adapters:         append([]string(nil), DefaultAdapters...),
		GithubToken:      os.Getenv("GITHUB_TOKEN"),
		OrwaScript:       "~/tools/orwa.sh",
		Probe: ProbeConfig{
			DNSTimeout:  3 * time.Second,
			HTTPTimeout: 10 * time.Second,
		},
		Native: NativeConfig{
			WaybackPageSize:  5000,
			WaybackMaxPages:  200,
			OTXPageSize:      500,
			OTXMaxPages:      100,
			RequestsPerSec:   1,
			CrawlDepth:       3,
			CrawlParallelism: 10,
			MaxScripts:       50,
		},
	}
}

// LoadFile reads a YAML file over Default(). Keys absent from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ExpandAdapters resolves presets ("native", "default") and removes duplicates
// while keeping the first occurrence's position.
func (c *Config) ExpandAdapters() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range c.Adapters {
		switch strings.TrimSpace(name) {
		case "native":
			for _, n := range NativeAdapters {
				add(n)
			}
		case "default":
			for _, n := range DefaultAdapters {
				add(n)
			}
		default:
			add(name)
		}
	}
	return out
}

// Validate checks the configuration for values that would make a run meaningless.
func (c *Config) Validate() error {
	var errs []error
	switch c.Policy {
	case PolicyIsolate, PolicyFailFast:
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q (want %q or %q)", c.Policy, PolicyIsolate, PolicyFailFast))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output directory must not be empty"))
	}
	if c.IndexFile == "" || strings.ContainsAny(c.IndexFile, "/\\") {
		errs = append(errs, fmt.Errorf("index file %q must be a plain file name", c.IndexFile))
	}
	if c.ParallelAdapters < 1 {
		errs = append(errs, fmt.Errorf("parallel adapters must be >= 1, got %d", c.ParallelAdapters))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.StageDelay < 0 {
		errs = append(errs, fmt.Errorf("stage delay must not be negative, got %s", c.StageDelay))
	}
	if c.AdapterTimeout <= 0 {
		errs = append(errs, fmt.Errorf("adapter timeout must be positive, got %s", c.AdapterTimeout))
	}
	if len(c.ExpandAdapters()) == 0 {
		errs = append(errs, errors.New("no adapters selected"))
	}
	names := make(map[string]struct{})
	for i, t := range c.Tools {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tools[%d]: name is required", i))
			continue
		}
		if _, dup := names[t.Name]; dup {
			errs = append(errs, fmt.Errorf("tools[%d]: duplicate name %q", i, t.Name))
		}
		names[t.Name] = struct{}{}
		switch t.Stdin {
		case StdinNone, StdinDomain, StdinSeeds:
		default:
			errs = append(errs, fmt.Errorf("tool %s: unknown stdin mode %q", t.Name, t.Stdin))
		}
		if t.Extract != "" {
			if _, err := regexp.Compile(t.Extract); err != nil {
				errs = append(errs, fmt.Errorf("tool %s: bad extract pattern: %w", t.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
