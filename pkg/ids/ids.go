// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ids provides deterministic identifier and location-string
// utilities shared by the extractor, builder, store and validator.
package ids

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// NodeID hashes the given structural-key parts into a stable 16-hex-digit
// identifier. Uniqueness across calls is the caller's responsibility:
// include enough discriminators (position, line, column) in parts to avoid
// collisions between distinct entities.
func NodeID(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])[:16]
}

// FormatLocation renders the canonical "<path>:<line>:<col>" location
// string used as the prefix-matchable key for a node's origin.
func FormatLocation(path string, line, col int) string {
	return path + ":" + strconv.Itoa(line) + ":" + strconv.Itoa(col)
}

// ParseLocation splits a location string back into its components. It is
// deliberately lenient: a malformed or partial location still yields
// whatever prefix was parseable rather than failing outright, because a
// violation referencing this location must still report a file path even
// if the line/column could not be recovered.
func ParseLocation(loc string) (path string, line *int, col *int) {
	if loc == "" || loc == "unknown" {
		return "", nil, nil
	}

	idx := strings.LastIndex(loc, ":")
	if idx < 0 {
		return loc, nil, nil
	}
	colStr := loc[idx+1:]
	rest := loc[:idx]

	idx2 := strings.LastIndex(rest, ":")
	if idx2 < 0 {
		// Only one ":" present: treat it as <path>:<line>.
		if n, err := strconv.Atoi(colStr); err == nil {
			return rest, &n, nil
		}
		return loc, nil, nil
	}
	lineStr := rest[idx2+1:]
	p := rest[:idx2]

	lineN, lineErr := strconv.Atoi(lineStr)
	colN, colErr := strconv.Atoi(colStr)

	switch {
	case lineErr == nil && colErr == nil:
		return p, &lineN, &colN
	case lineErr == nil:
		return p, &lineN, nil
	default:
		return loc, nil, nil
	}
}

// HasLocationPrefix reports whether loc originates under the given file
// path, the test delete_nodes_by_location_prefix relies on.
func HasLocationPrefix(loc, path string) bool {
	if loc == path {
		return true
	}
	return strings.HasPrefix(loc, path+":")
}
