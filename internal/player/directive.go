/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package player

import (
	"sort"
	"strings"
	"time"
)

// directives are reserved queue names that pause the worker instead of
// playing a file. They may be queued with or without a .wav suffix.
var directives = map[string]time.Duration{
	"delay100":  100 * time.Millisecond,
	"delay200":  200 * time.Millisecond,
	"delay500":  500 * time.Millisecond,
	"delay750":  750 * time.Millisecond,
	"delay1000": 1000 * time.Millisecond,
	"delay5000": 5000 * time.Millisecond,
}

const directiveSuffix = ".wav"

// LookupDirective returns the canonical directive name and pause duration
// for name, matching case-insensitively
func LookupDirective(name string) (string, time.Duration, bool) {
	key := strings.TrimSuffix(strings.ToLower(name), directiveSuffix)
	d, ok := directives[key]
	if !ok {
		return "", 0, false
	}
	return key, d, true
}

// Directives lists the canonical directive names, shortest pause first
func Directives() []string {
	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return directives[names[i]] < directives[names[j]] })
	return names
}
