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

package audio

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Container errors. Each is distinguishable with errors.Is.
var (
	ErrBadMagic             = errors.New("audio: bad container magic")
	ErrUnsupportedFormat    = errors.New("audio: unsupported sample format")
	ErrUnsupportedChannels  = errors.New("audio: unsupported channel count")
	ErrUnsupportedBitDepth  = errors.New("audio: unsupported bit depth")
	ErrNoDataChunk          = errors.New("audio: no data chunk")
	ErrChunkOutOfBounds     = errors.New("audio: chunk extends past end of stream")
	ErrTruncated            = errors.New("audio: truncated sample data")
	ErrUnsupportedContainer = errors.New("audio: unsupported container")
)

// Format describes interleaved PCM as delivered by a Decoder
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// BlockAlign is the size in bytes of one frame across all channels
func (f Format) BlockAlign() int {
	return f.Channels * f.BitDepth / 8
}

// Validate checks that the sink can render f
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate %d: %w", f.SampleRate, ErrUnsupportedFormat)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("%d channels: %w", f.Channels, ErrUnsupportedChannels)
	}
	if f.BitDepth != 8 && f.BitDepth != 16 {
		return fmt.Errorf("%d bits: %w", f.BitDepth, ErrUnsupportedBitDepth)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d bit", f.SampleRate, f.Channels, f.BitDepth)
}

// Decoder streams PCM out of a container. ReadChunk fills dst with whole
// frames and returns io.EOF once the samples are exhausted.
type Decoder interface {
	Format() Format
	ReadChunk(dst []byte) (int, error)
	Close() error
}

type decoderFactory func(r io.ReadSeeker) (Decoder, error)

var decoders = []struct {
	ext string
	new decoderFactory
}{
	{".wav", func(r io.ReadSeeker) (Decoder, error) { return NewWAVDecoder(r) }},
	{".mp3", func(r io.ReadSeeker) (Decoder, error) { return NewMP3Decoder(r) }},
	{".flac", func(r io.ReadSeeker) (Decoder, error) { return NewFLACDecoder(r) }},
}

// Extensions lists the container extensions NewDecoder understands
func Extensions() []string {
	exts := make([]string, len(decoders))
	for i, d := range decoders {
		exts[i] = d.ext
	}
	return exts
}

// IsSupported reports whether name has a decodable extension
func IsSupported(name string) bool {
	_, ok := factoryFor(name)
	return ok
}

// NewDecoder picks a decoder by the extension of name. The decoder reads
// from r but does not own it.
func NewDecoder(name string, r io.ReadSeeker) (Decoder, error) {
	factory, ok := factoryFor(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedContainer)
	}
	return factory(r)
}

func factoryFor(name string) (decoderFactory, bool) {
	ext := strings.ToLower(path.Ext(name))
	for _, d := range decoders {
		if d.ext == ext {
			return d.new, true
		}
	}
	return nil, false
}

// readFull fills dst from read, treating a short final read as success.
func readFull(read func([]byte) (int, error), dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := read(dst[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total == 0 && len(dst) > 0 {
		return 0, io.EOF
	}
	return total, nil
}
