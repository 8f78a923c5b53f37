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
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	rxio "github.com/x-stp/rxurls/internal/io"
	"github.com/x-stp/rxurls/internal/metrics"
)

// RunIndex is the shared, append-only summary file. Each completed domain
// adds one line "<domain> - <count>", followed by " [failed: a,b]" when some
// adapters failed under the isolate policy. Appends are serialized in-process
// and guarded by an advisory file lock across processes.
type RunIndex struct {
	path string
	mu   sync.Mutex
}

// NewRunIndex returns an index writing to path.
func NewRunIndex(path string) *RunIndex {
	return &RunIndex{path: filepath.Clean(path)}
}

// Path returns the index file path.
func (ri *RunIndex) Path() string { return ri.path }

// FormatEntry renders one index line.
func FormatEntry(domain string, count int, failed []string) string {
	var b strings.Builder
	b.WriteString(domain)
	b.WriteString(IndexSeparator)
	b.WriteString(strconv.Itoa(count))
	if len(failed) > 0 {
		b.WriteString(" [failed: ")
		b.WriteString(strings.Join(failed, ","))
		b.WriteString("]")
	}
	return b.String()
}

// Append writes the entry for one domain. Existing entries are never
// rewritten; reprocessing a domain adds another line.
func (ri *RunIndex) Append(domain string, count int, failed []string) error {
	entry := FormatEntry(domain, count, failed)

	ri.mu.Lock()
	defer ri.mu.Unlock()
	if err := rxio.AppendLine(ri.path, entry); err != nil {
		return fmt.Errorf("failed to append to index %s: %w", ri.path, err)
	}
	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().IndexAppendsTotal.Inc()
	}
	return nil
}
