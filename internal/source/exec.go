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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/x-stp/rxurls/internal/config"
	rxio "github.com/x-stp/rxurls/internal/io"
	"github.com/x-stp/rxurls/internal/logging"
)

// waitDelay bounds how long Wait blocks on pipes held open by children of a
// killed tool.
const waitDelay = 5 * time.Second

// ExecSpec describes an external tool. Args may contain the placeholders
// {domain}, {seeds} (seed file path), {tmp} (scratch output file) and
// {domainfile} (a scratch file holding the domain).
type ExecSpec struct {
	Name    string
	Path    string
	Args    []string
	Stdin   string
	Seeding Seeding
	// Extract, when set, emits every match per output line instead of the line.
	Extract *regexp.Regexp
	// MustContainDomain drops lines that do not mention the domain.
	MustContainDomain bool
	// OutputFile reads results from {tmp} after the tool exits.
	OutputFile bool
	Env        []string
	// Requires lists files that must exist for the tool to work.
	Requires []string
	// Precheck runs after the binary lookup; used for tokens.
	Precheck func() error
	// Secrets are masked in debug output.
	Secrets []string
}

// Exec runs an external tool and streams its output lines as candidates.
type Exec struct {
	spec ExecSpec
}

// NewExec creates an Exec adapter.
func NewExec(spec ExecSpec) *Exec {
	spec.Path = expandHome(spec.Path)
	spec.Args = append([]string(nil), spec.Args...)
	for i, a := range spec.Args {
		spec.Args[i] = expandHome(a)
	}
	spec.Requires = append([]string(nil), spec.Requires...)
	for i, r := range spec.Requires {
		spec.Requires[i] = expandHome(r)
	}
	return &Exec{spec: spec}
}

func (e *Exec) Name() string     { return e.spec.Name }
func (e *Exec) Seeding() Seeding { return e.spec.Seeding }

// Check verifies the binary is on PATH and required files exist.
func (e *Exec) Check() error {
	if _, err := exec.LookPath(e.spec.Path); err != nil {
		return fmt.Errorf("%w: %s not installed or not in PATH", ErrUnavailable, e.spec.Path)
	}
	for _, f := range e.spec.Requires {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, f, err)
		}
	}
	if e.spec.Precheck != nil {
		if err := e.spec.Precheck(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Discover runs the tool once for t.
func (e *Exec) Discover(ctx context.Context, t Target, emit func(string)) error {
	var scratch []string
	defer func() {
		for _, p := range scratch {
			os.Remove(p)
		}
	}()
	newScratch := func(content string) (string, error) {
		f, err := os.CreateTemp(t.WorkDir, "rxurls-"+e.spec.Name+"-*")
		if err != nil {
			return "", fmt.Errorf("failed to create scratch file: %w", err)
		}
		scratch = append(scratch, f.Name())
		_, werr := f.WriteString(content)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		return f.Name(), werr
	}

	repl := []string{"{domain}", t.Domain, "{seeds}", t.SeedFile}
	var tmpPath string
	if e.needs("{tmp}") || e.spec.OutputFile {
		p, err := newScratch("")
		if err != nil {
			return err
		}
		// Some tools refuse to overwrite; they get a path that does not exist yet.
		os.Remove(p)
		tmpPath = p
		repl = append(repl, "{tmp}", p)
	}
	if e.needs("{domainfile}") {
		p, err := newScratch(t.Domain + "\n")
		if err != nil {
			return err
		}
		repl = append(repl, "{domainfile}", p)
	}
	r := strings.NewReplacer(repl...)
	args := make([]string, len(e.spec.Args))
	for i, a := range e.spec.Args {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, e.spec.Path, args...)
	cmd.WaitDelay = waitDelay
	if len(e.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), e.spec.Env...)
	}
	switch e.spec.Stdin {
	case config.StdinDomain:
		cmd.Stdin = strings.NewReader(t.Domain + "\n")
	case config.StdinSeeds:
		f, err := os.Open(t.SeedFile)
		if err != nil {
			return fmt.Errorf("failed to open seed file: %w", err)
		}
		defer f.Close()
		cmd.Stdin = f
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	// Stdout goes through an io.Pipe so Wait, not the reader, owns the OS
	// pipe; WaitDelay then bounds a tool whose children keep it open.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	logging.ForDomain(t.Domain).WithField("stage", e.spec.Name).Debugf("Executing %s %s", e.spec.Path, strings.Join(e.redact(args), " "))
	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("failed to start %s: %w", e.spec.Path, err)
	}
	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waitCh <- err
	}()

	scanErr := e.scan(pr, t.Domain, emit)
	if scanErr != nil {
		io.Copy(io.Discard, pr)
	}
	waitErr := <-waitCh

	if err := ctx.Err(); err != nil {
		return err
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return fmt.Errorf("%s exited with code %d: %s", e.spec.Name, exitErr.ExitCode(), stderr.String())
		}
		return fmt.Errorf("%s: %w", e.spec.Name, waitErr)
	}
	if scanErr != nil {
		return fmt.Errorf("failed to read %s output: %w", e.spec.Name, scanErr)
	}

	if e.spec.OutputFile {
		f, err := os.Open(tmpPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Tools skip creating the file when they found nothing.
				return nil
			}
			return fmt.Errorf("failed to open %s output file: %w", e.spec.Name, err)
		}
		defer f.Close()
		if err := e.scan(f, t.Domain, emit); err != nil {
			return fmt.Errorf("failed to read %s output file: %w", e.spec.Name, err)
		}
	}
	return nil
}

func (e *Exec) needs(placeholder string) bool {
	for _, a := range e.spec.Args {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

func (e *Exec) scan(r io.Reader, domain string, emit func(string)) error {
	skipped, err := rxio.ScanLines(r, func(line string) {
		if e.spec.MustContainDomain && !strings.Contains(line, domain) {
			return
		}
		if e.spec.Extract == nil {
			emit(line)
			return
		}
		for _, m := range e.spec.Extract.FindAllString(line, -1) {
			emit(m)
		}
	})
	if skipped > 0 {
		logging.ForDomain(domain).WithField("stage", e.spec.Name).Warnf("Skipped %d output lines longer than %d bytes", skipped, rxio.MaxLineSize)
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}

func (e *Exec) redact(args []string) []string {
	out := append([]string(nil), args...)
	for i := range out {
		for _, secret := range e.spec.Secrets {
			if secret != "" {
				out[i] = strings.ReplaceAll(out[i], secret, "***")
			}
		}
	}
	return out
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// lineScanner is shared by the native adapters that parse line-oriented bodies.
func lineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return s
}
