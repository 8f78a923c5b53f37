package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/x-stp/rxurls/internal/config"
	"github.com/x-stp/rxurls/internal/core"
	"github.com/x-stp/rxurls/internal/logging"
	"github.com/x-stp/rxurls/internal/source"
)

func init() { logging.Discard() }

func adapterNamesOf(adapters []source.Adapter) string {
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	return strings.Join(names, ",")
}

func TestPreflight(t *testing.T) {
	t.Parallel()
	present := source.Static("static", "https://example.com/")
	absent := source.NewExec(source.ExecSpec{Name: "ghost", Path: "rxurls-no-such-tool"})

	tests := []struct {
		name      string
		adapters  []source.Adapter
		skip      bool
		wantSetup bool
		wantNames string
	}{
		{"all present", []source.Adapter{present}, false, false, "static"},
		{"missing tool fails setup", []source.Adapter{present, absent}, false, true, ""},
		{"skip-missing drops tool", []source.Adapter{absent, present}, true, false, "static"},
		{"nothing usable after skip", []source.Adapter{absent}, true, true, ""},
		{"no adapters", nil, false, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			usable, err := preflight(tt.adapters, tt.skip)
			if got := errors.Is(err, core.ErrSetup); got != tt.wantSetup {
				t.Fatalf("preflight err = %v; setup error = %v, want %v", err, got, tt.wantSetup)
			}
			if err == nil && adapterNamesOf(usable) != tt.wantNames {
				t.Fatalf("usable = %s; want %s", adapterNamesOf(usable), tt.wantNames)
			}
		})
	}
}

func TestCheckOutputDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		path      string
		wantSetup bool
	}{
		{"existing dir", dir, false},
		{"created on demand", filepath.Join(dir, "nested", "out"), false},
		{"under a regular file", filepath.Join(blocker, "out"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := checkOutputDir(tt.path)
			if got := errors.Is(err, core.ErrSetup); got != tt.wantSetup || (err != nil && !got) {
				t.Fatalf("checkOutputDir(%s) = %v; want setup error %v", tt.path, err, tt.wantSetup)
			}
		})
	}
}

func TestSelectAdaptersUnknownIsSetupError(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Adapters = []string{"no-such-adapter"}
	if _, err := selectAdapters(cfg); !errors.Is(err, core.ErrSetup) {
		t.Fatalf("selectAdapters = %v; want setup error", err)
	}
}

// Not parallel: loadConfig reads the package-level flag variables.
func TestLoadConfigErrorsAreSetupErrors(t *testing.T) {
	tests := []struct {
		name  string
		flag  string
		value string
	}{
		{"unknown policy", "policy", "sometimes"},
		{"missing config file", "config", filepath.Join(t.TempDir(), "absent.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := rootCmd.Flags()
			if fs.Lookup(tt.flag) == nil {
				fs = rootCmd.PersistentFlags()
			}
			fl := fs.Lookup(tt.flag)
			if fl == nil {
				t.Fatalf("flag %s not registered", tt.flag)
			}
			previous := fl.Value.String()
			t.Cleanup(func() {
				fl.Value.Set(previous)
				fl.Changed = false
			})
			if err := fs.Set(tt.flag, tt.value); err != nil {
				t.Fatal(err)
			}
			if _, err := loadConfig(rootCmd); !errors.Is(err, core.ErrSetup) {
				t.Fatalf("loadConfig = %v; want setup error", err)
			}
		})
	}

	cfg, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig with defaults: %v", err)
	}
	if cfg.Policy != config.PolicyIsolate {
		t.Fatalf("policy = %s; want %s", cfg.Policy, config.PolicyIsolate)
	}
}
