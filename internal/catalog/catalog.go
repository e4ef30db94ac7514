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

// Package catalog holds the list of playable tracks found on the volume at
// startup.
package catalog

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/loqalabs/loqa-chime-go/internal/playlist"
	"github.com/loqalabs/loqa-chime-go/internal/storage"
)

// DefaultCapacity is the firmware's playlist table size
const DefaultCapacity = 200

// DefaultHiddenPrefix marks files that are never listed
const DefaultHiddenPrefix = "_"

// Config controls which files become catalog entries
type Config struct {
	Capacity     int
	Extensions   []string
	HiddenPrefix string
}

// DefaultConfig returns capacity 200, hidden prefix "_" and the given extensions
func DefaultConfig(extensions ...string) Config {
	return Config{
		Capacity:     DefaultCapacity,
		Extensions:   extensions,
		HiddenPrefix: DefaultHiddenPrefix,
	}
}

// Catalog is immutable after Build and safe for concurrent reads
type Catalog struct {
	entries []playlist.Name
	index   map[playlist.Name]int
	skipped int
}

// Build scans root once and records every playable file in listing order
func Build(store storage.Storage, root string, cfg Config, log zerolog.Logger) (*Catalog, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("catalog capacity must be positive, got %d", cfg.Capacity)
	}
	if len(cfg.Extensions) == 0 {
		return nil, fmt.Errorf("catalog needs at least one extension")
	}

	listing, err := store.List(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	c := &Catalog{index: make(map[playlist.Name]int)}
	for _, e := range listing {
		if e.IsDir || !cfg.playable(e.Name) {
			continue
		}
		name, err := playlist.ParseName(e.Name)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("⚠️  Skipping track with unusable name")
			continue
		}
		if len(c.entries) >= cfg.Capacity {
			c.skipped++
			continue
		}
		c.index[name] = len(c.entries)
		c.entries = append(c.entries, name)
		log.Debug().Str("track", e.Name).Msg("Added to playlist")
	}

	if c.skipped > 0 {
		log.Warn().
			Int("capacity", cfg.Capacity).
			Int("skipped", c.skipped).
			Msg("⚠️  Catalog full, remaining tracks ignored")
	}
	log.Info().Int("tracks", len(c.entries)).Str("root", root).Msg("📂 Track catalog built")
	return c, nil
}

func (cfg Config) playable(name string) bool {
	if cfg.HiddenPrefix != "" && strings.HasPrefix(name, cfg.HiddenPrefix) {
		return false
	}
	lower := strings.ToLower(name)
	for _, ext := range cfg.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// Resolve maps a requested name to its catalog entry. A leading slash is
// ignored; matching is otherwise exact.
func (c *Catalog) Resolve(requested string) (playlist.Name, bool) {
	requested = strings.TrimPrefix(requested, "/")
	i, ok := c.index[playlist.Name(requested)]
	if !ok {
		return "", false
	}
	return c.entries[i], true
}

// Entry returns the i-th track
func (c *Catalog) Entry(i int) (playlist.Name, bool) {
	if i < 0 || i >= len(c.entries) {
		return "", false
	}
	return c.entries[i], true
}

// Entries returns a copy of all tracks in scan order
func (c *Catalog) Entries() []playlist.Name {
	out := make([]playlist.Name, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of tracks
func (c *Catalog) Len() int { return len(c.entries) }

// Skipped returns how many playable files did not fit
func (c *Catalog) Skipped() int { return c.skipped }
