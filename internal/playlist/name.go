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

package playlist

import (
	"errors"
	"fmt"
)

// MaxNameLen is the longest track name the queue stores
const MaxNameLen = 50

var (
	// ErrEmptyName is returned for blank track names
	ErrEmptyName = errors.New("playlist: empty track name")

	// ErrNameTooLong is returned for names over MaxNameLen bytes
	ErrNameTooLong = errors.New("playlist: track name too long")
)

// Name is a validated track name. Construct it with ParseName.
type Name string

// ParseName validates s as a queue entry. Names are rejected, never truncated.
func ParseName(s string) (Name, error) {
	if s == "" {
		return "", ErrEmptyName
	}
	if len(s) > MaxNameLen {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrNameTooLong, len(s), MaxNameLen)
	}
	return Name(s), nil
}

// String implements fmt.Stringer
func (n Name) String() string { return string(n) }
