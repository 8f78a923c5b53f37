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
	"bytes"
	"errors"
	"fmt"
	goio "io"
	"os"
	"path/filepath"
	"strings"
)

// MaxLineSize caps a single record. Longer lines are skipped when scanning.
const MaxLineSize = 1024 * 1024

const scanBufferSize = 64 * 1024

// ReadLines returns the non-empty lines of path, trimmed of surrounding
// whitespace. A missing file yields no lines and no error.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	_, err = ScanLines(f, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// ScanLines calls fn for every non-empty trimmed line read from r. Lines
// longer than MaxLineSize are skipped; it returns how many were skipped.
func ScanLines(r goio.Reader, fn func(string)) (int, error) {
	br := bufio.NewReaderSize(r, scanBufferSize)
	var (
		line    []byte
		tooLong bool
		skipped int
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(bytes.TrimRight(chunk, "\r\n")) > MaxLineSize {
				tooLong = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if tooLong {
			skipped++
		} else if rec := strings.TrimSpace(string(line)); rec != "" {
			fn(rec)
		}
		line = line[:0]
		tooLong = false

		if err != nil {
			if errors.Is(err, goio.EOF) {
				return skipped, nil
			}
			return skipped, err
		}
	}
}

// CountLines returns the number of non-empty lines in path.
func CountLines(path string) (int, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}

// RepairTornTail truncates path after its last newline, dropping a partial
// record left by an interrupted writer. It returns the number of bytes removed.
func RepairTornTail(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return 0, nil
	}
	keep := int64(bytes.LastIndexByte(data, '\n') + 1)
	if err := os.Truncate(path, keep); err != nil {
		return 0, fmt.Errorf("failed to truncate %s: %w", path, err)
	}
	return int64(len(data)) - keep, nil
}

// WriteFileAtomic writes lines to path.tmp, syncs it and renames it over path,
// so readers see either the old file or the complete new one.
func WriteFileAtomic(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	w := bufio.NewWriterSize(f, DefaultBufferSize)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			break
		}
		if err := w.WriteByte('\n'); err != nil {
			break
		}
	}
	err = w.Flush()
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// AppendLine appends one record to path under an exclusive file lock, so
// concurrent processes sharing an output directory never interleave entries.
func AppendLine(path, record string) error {
	if strings.ContainsAny(record, "\r\n") {
		return ErrMultiline
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return err
	}
	defer unlockFile(f)

	if _, err := f.WriteString(record + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return f.Sync()
}
