package util

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
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
)

// maxNameLength bounds generated file names to avoid OS limits.
const maxNameLength = 100

// SanitizeFilename creates a filesystem-safe token from a URL or other string.
// Path separators and characters reserved on common filesystems become underscores;
// dots are kept, so "example.com" stays readable.
func SanitizeFilename(input string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(input))
	if replaced == "." || replaced == ".." {
		replaced = strings.Repeat("_", len(replaced))
	}
	return bound(replaced, input)
}

// SanitizeDomain turns a target domain into the token used for its output file.
// In addition to SanitizeFilename's rewrites it maps '.' to '_', so
// "example.com" becomes "example_com" and "example.com/app" becomes "example_com_app".
func SanitizeDomain(domain string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '.', '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(domain))
	return bound(replaced, domain)
}

// bound truncates long names and appends a hash of the original input so that
// two long inputs sharing a prefix still map to different files.
func bound(name, original string) string {
	if len(name) <= maxNameLength {
		return name
	}
	suffix := "_" + strconv.FormatUint(xxh3.HashString(original), 16)
	cut := maxNameLength - len(suffix)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + suffix
}
