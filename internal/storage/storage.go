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

// Package storage exposes the mounted track volume to the rest of the device.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a path does not exist on the volume
var ErrNotFound = errors.New("storage: not found")

// ErrOutsideRoot is returned for paths that would escape the mount root
var ErrOutsideRoot = errors.New("storage: path escapes root")

// Entry describes one directory entry
type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Storage is the read-only file surface the catalog and player depend on
type Storage interface {
	Open(name string) (io.ReadSeekCloser, error)
	List(dir string) ([]Entry, error)
}

// DirStorage serves files from a directory, typically an SD card mount
type DirStorage struct {
	root string
}

// NewDirStorage returns storage rooted at root. The directory must exist.
func NewDirStorage(root string) (*DirStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage root %s: %w", abs, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat storage root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", abs)
	}
	return &DirStorage{root: abs}, nil
}

// Root returns the absolute mount directory
func (s *DirStorage) Root() string { return s.root }

// Open opens name, given relative to the root. A leading slash is allowed.
func (s *DirStorage) Open(name string) (io.ReadSeekCloser, error) {
	full, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// List returns the entries of dir sorted by name
func (s *DirStorage) List(dir string) ([]Entry, error) {
	full, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %s: %w", dir, ErrNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if !e.IsDir {
			if info, err := de.Info(); err == nil {
				e.Size = info.Size()
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *DirStorage) resolve(name string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(name))
	if strings.Contains(clean, "\x00") {
		return "", fmt.Errorf("%q: %w", name, ErrOutsideRoot)
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, ErrOutsideRoot)
	}
	return full, nil
}
