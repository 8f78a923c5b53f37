/*
Package store implements the per-domain dedup store: an in-memory set of URL
records backed by an append-only file that survives restarts.

The set is split into shards chosen by xxh3 so that concurrent producers
rarely contend on the same lock. Every newly inserted record is appended to
the backing file as one whole line; reopening the store reloads that file, so
an interrupted run resumes with everything it had already collected.
*/
package store

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
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	rxio "github.com/x-stp/rxurls/internal/io"
	"github.com/x-stp/rxurls/internal/logging"
)

const numShards = 64

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("dedup store closed")

type shard struct {
	mu   sync.Mutex
	recs map[string]struct{}
}

// Store is a set of records with a durable backing file.
type Store struct {
	path   string
	shards [numShards]*shard
	file   *rxio.LineFile
	count  atomic.Int64
	closed atomic.Bool

	// writeMu orders appends to the backing file with the in-memory insert,
	// so the file never holds a record the set does not.
	writeMu sync.Mutex
}

// Open opens the store backed by path, creating it if needed. Records already
// in the file are loaded; a torn trailing line is truncated first.
func Open(ctx context.Context, path string) (*Store, error) {
	removed, err := rxio.RepairTornTail(path)
	if err != nil {
		return nil, fmt.Errorf("failed to repair %s: %w", path, err)
	}
	if removed > 0 {
		logging.Logger.WithField("file", path).Warnf("Dropped %d bytes of torn record from previous run", removed)
	}

	s := &Store{path: path}
	for i := range s.shards {
		s.shards[i] = &shard{recs: make(map[string]struct{})}
	}

	existing, err := rxio.ReadLines(path)
	if err != nil {
		return nil, err
	}
	for _, rec := range existing {
		if s.insert(rec) {
			s.count.Add(1)
		}
	}

	f, err := rxio.OpenLineFile(ctx, path, &rxio.LineFileOptions{
		BufferSize:    rxio.DefaultBufferSize,
		FlushInterval: rxio.FlushInterval,
		Identifier:    path,
	})
	if err != nil {
		return nil, err
	}
	s.file = f
	return s, nil
}

func (s *Store) shardFor(rec string) *shard {
	return s.shards[xxh3.HashString(rec)%numShards]
}

func (s *Store) insert(rec string) bool {
	sh := s.shardFor(rec)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.recs[rec]; ok {
		return false
	}
	sh.recs[rec] = struct{}{}
	return true
}

func (s *Store) remove(rec string) {
	sh := s.shardFor(rec)
	sh.mu.Lock()
	delete(sh.recs, rec)
	sh.mu.Unlock()
}

// Contains reports whether rec is in the set.
func (s *Store) Contains(rec string) bool {
	sh := s.shardFor(strings.TrimSpace(rec))
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.recs[strings.TrimSpace(rec)]
	return ok
}

// AddIfAbsent inserts rec and appends it to the backing file. It reports
// whether rec was new. Empty records, records containing line breaks and
// records longer than rxio.MaxLineSize are ignored.
func (s *Store) AddIfAbsent(rec string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	rec = strings.TrimSpace(rec)
	if rec == "" || len(rec) > rxio.MaxLineSize || strings.ContainsAny(rec, "\r\n") {
		return false, nil
	}
	if !s.insert(rec) {
		return false, nil
	}

	s.writeMu.Lock()
	err := s.file.WriteLine(rec)
	s.writeMu.Unlock()
	if err != nil {
		s.remove(rec)
		return false, fmt.Errorf("failed to persist record: %w", err)
	}
	s.count.Add(1)
	return true, nil
}

// Count returns the number of distinct records.
func (s *Store) Count() int {
	return int(s.count.Load())
}

// Records returns every record, unsorted.
func (s *Store) Records() []string {
	out := make([]string, 0, s.Count())
	for _, sh := range s.shards {
		sh.mu.Lock()
		for rec := range sh.recs {
			out = append(out, rec)
		}
		sh.mu.Unlock()
	}
	return out
}

// Flush pushes buffered records to disk.
func (s *Store) Flush() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.file.Flush()
}

// Close flushes and closes the backing file, keeping it on disk so a later
// Open resumes from it.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.file.Close()
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// DrainTo merges the records accepted by keep into the final file at final:
// the union of the lines already there and the kept records is sorted and
// written atomically. The store is then closed and its backing file removed.
// It returns the number of lines in the final file. A nil keep accepts all.
// On failure the store is still closed but its backing file is kept, so a
// later Open resumes from it.
func (s *Store) DrainTo(final string, keep func(string) bool) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	lines, err := s.merge(final, keep)
	if err == nil {
		err = rxio.WriteFileAtomic(final, lines)
	}
	if err != nil {
		return 0, errors.Join(err, s.Close())
	}

	if err := s.Close(); err != nil {
		return len(lines), err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return len(lines), fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return len(lines), nil
}

func (s *Store) merge(final string, keep func(string) bool) ([]string, error) {
	if err := s.file.Flush(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	previous, err := rxio.ReadLines(final)
	if err != nil {
		return nil, err
	}
	for _, line := range previous {
		merged[line] = struct{}{}
	}
	for _, rec := range s.Records() {
		if keep == nil || keep(rec) {
			merged[rec] = struct{}{}
		}
	}

	lines := make([]string, 0, len(merged))
	for line := range merged {
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return lines, nil
}
