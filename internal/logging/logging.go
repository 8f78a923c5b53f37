/*
Package logging holds the process-wide structured logger.

All progress reporting goes through Logger so that per-domain and per-stage
messages carry the same fields (domain, stage, count) regardless of which
component emits them.
*/
package logging

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
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the shared logger. It writes to stderr so that stdout stays free
// for machine-readable output.
var Logger = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	return &logrus.Logger{
		Out:   w,
		Level: logrus.InfoLevel,
		Formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		},
		Hooks:        make(logrus.LevelHooks),
		ExitFunc:     os.Exit,
		ReportCaller: false,
	}
}

// Configure adjusts verbosity and output. A nil writer keeps the current one.
func Configure(debug bool, w io.Writer) {
	if w != nil {
		Logger.SetOutput(w)
	}
	if debug {
		Logger.SetLevel(logrus.DebugLevel)
	} else {
		Logger.SetLevel(logrus.InfoLevel)
	}
}

// ForDomain returns an entry pre-populated with the domain field.
func ForDomain(domain string) *logrus.Entry {
	return Logger.WithField("domain", domain)
}

// Discard silences the logger; used by tests that exercise noisy paths.
func Discard() {
	Logger.SetOutput(io.Discard)
}
