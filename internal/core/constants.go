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

import "time"

const (
	// MaxWorkers caps the domain worker pool regardless of configuration.
	MaxWorkers = 64

	// SubmitRetryDelay is the pause before re-submitting work to a full queue.
	SubmitRetryDelay = 50 * time.Millisecond

	// MaxSubmitRetries bounds re-submission attempts for one domain.
	MaxSubmitRetries = 200

	// IndexSeparator sits between the domain and the count in an index line.
	IndexSeparator = " - "

	// TempSuffix is appended to the final output path to name the dedup store file.
	TempSuffix = "_temp"
)
