/*
Package io provides the durable, line-oriented file primitives used by the
dedup store, the run index and the final output writer.

Every record is one text line. Writers guarantee that each underlying write
syscall carries only whole lines, so an interrupted process leaves at most
one torn trailing line, which RepairTornTail removes on the next open.
*/
package io

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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBufferSize is the default buffer size for line files.
	DefaultBufferSize = 64 * 1024

	// FlushInterval is how often buffered lines are pushed to disk automatically.
	FlushInterval = 2 * time.Second
)

var (
	// ErrFileClosed is returned when writing to a closed LineFile.
	ErrFileClosed = errors.New("line file closed")

	// ErrMultiline is returned when a record contains a line break.
	ErrMultiline = errors.New("record contains a line break")
)

// FileMetrics holds counters for a LineFile.
type FileMetrics struct {
	LinesWritten  atomic.Int64
	BytesWritten  atomic.Int64
	FlushCount    atomic.Int64
	ErrorCount    atomic.Int64
	LastFlushTime atomic.Int64 // Unix nanoseconds
}

// LineFile is an append-only, buffered writer of newline-terminated records
// with a background flusher.
type LineFile struct {
	path          string
	file          *os.File
	bufWriter     *bufio.Writer
	bufferSize    int
	flushInterval time.Duration
	syncOnFlush   bool
	identifier    string

	mu     sync.Mutex
	closed bool

	ctx     context.Context
	cancel  context.CancelFunc
	flushWg sync.WaitGroup

	metrics FileMetrics
}

// LineFileOptions configures a LineFile.
type LineFileOptions struct {
	BufferSize    int
	FlushInterval time.Duration // <= 0 disables the background flusher.
	SyncOnFlush   bool          // fsync after each flush.
	Identifier    string
}

// DefaultLineFileOptions returns the default options for LineFile.
func DefaultLineFileOptions() *LineFileOptions {
	return &LineFileOptions{
		BufferSize:    DefaultBufferSize,
		FlushInterval: FlushInterval,
		SyncOnFlush:   true,
	}
}

// OpenLineFile opens (or creates) path for appending.
func OpenLineFile(ctx context.Context, path string, options *LineFileOptions) (*LineFile, error) {
	if options == nil {
		options = DefaultLineFileOptions()
	}
	if options.BufferSize <= 0 {
		options.BufferSize = DefaultBufferSize
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	fileCtx, cancel := context.WithCancel(ctx)
	lf := &LineFile{
		path:          path,
		file:          file,
		bufWriter:     bufio.NewWriterSize(file, options.BufferSize),
		bufferSize:    options.BufferSize,
		flushInterval: options.FlushInterval,
		syncOnFlush:   options.SyncOnFlush,
		identifier:    options.Identifier,
		ctx:           fileCtx,
		cancel:        cancel,
	}
	if lf.flushInterval > 0 {
		lf.startBackgroundFlusher()
	}
	return lf, nil
}

func (lf *LineFile) startBackgroundFlusher() {
	ticker := time.NewTicker(lf.flushInterval)
	lf.flushWg.Add(1)
	go func() {
		defer lf.flushWg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := lf.Flush(); err != nil && !errors.Is(err, ErrFileClosed) {
					lf.metrics.ErrorCount.Add(1)
				}
			case <-lf.ctx.Done():
				return
			}
		}
	}()
}

// WriteLine appends one record. The record must not contain '\n' or '\r'.
// A record never straddles two underlying writes: if it does not fit in the
// remaining buffer, the buffer is flushed first; records larger than the
// whole buffer are written directly in one call.
func (lf *LineFile) WriteLine(record string) error {
	if strings.ContainsAny(record, "\r\n") {
		return ErrMultiline
	}
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.closed {
		return ErrFileClosed
	}

	need := len(record) + 1
	if need > lf.bufWriter.Available() && lf.bufWriter.Buffered() > 0 {
		if err := lf.bufWriter.Flush(); err != nil {
			lf.metrics.ErrorCount.Add(1)
			return fmt.Errorf("failed to flush %s: %w", lf.path, err)
		}
	}

	var err error
	if need > lf.bufferSize {
		_, err = lf.file.WriteString(record + "\n")
	} else {
		_, err = lf.bufWriter.WriteString(record + "\n")
	}
	if err != nil {
		lf.metrics.ErrorCount.Add(1)
		return fmt.Errorf("failed to write to %s: %w", lf.path, err)
	}

	lf.metrics.LinesWritten.Add(1)
	lf.metrics.BytesWritten.Add(int64(need))
	return nil
}

// Flush pushes buffered records to the file and, if configured, fsyncs it.
func (lf *LineFile) Flush() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.closed {
		return ErrFileClosed
	}
	return lf.flushLocked()
}

func (lf *LineFile) flushLocked() error {
	if err := lf.bufWriter.Flush(); err != nil {
		lf.metrics.ErrorCount.Add(1)
		return fmt.Errorf("failed to flush %s: %w", lf.path, err)
	}
	if lf.syncOnFlush {
		if err := lf.file.Sync(); err != nil {
			lf.metrics.ErrorCount.Add(1)
			return fmt.Errorf("failed to sync %s: %w", lf.path, err)
		}
	}
	lf.metrics.FlushCount.Add(1)
	lf.metrics.LastFlushTime.Store(time.Now().UnixNano())
	return nil
}

// Close flushes and closes the file. Calling Close twice is a no-op.
func (lf *LineFile) Close() error {
	lf.cancel()
	lf.flushWg.Wait()

	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.closed {
		return nil
	}
	lf.closed = true

	flushErr := lf.flushLocked()
	if err := lf.file.Close(); err != nil {
		return fmt.Errorf("failed to close file %s: %w", lf.path, err)
	}
	return flushErr
}

// Path returns the file path.
func (lf *LineFile) Path() string { return lf.path }

// Metrics returns the live counters.
func (lf *LineFile) Metrics() *FileMetrics { return &lf.metrics }
