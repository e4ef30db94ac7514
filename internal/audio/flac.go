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
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// FLACDecoder streams FLAC audio as interleaved 16-bit PCM
type FLACDecoder struct {
	stream  *flac.Stream
	format  Format
	shift   int
	pending []byte
	eof     bool
}

// NewFLACDecoder parses the FLAC signature and StreamInfo block of r
func NewFLACDecoder(r io.ReadSeeker) (*FLACDecoder, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC decoder: %w: %w", ErrBadMagic, err)
	}

	channels := int(stream.Info.NChannels)
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%d channels: %w", channels, ErrUnsupportedChannels)
	}
	bits := int(stream.Info.BitsPerSample)
	if bits < 4 || bits > 32 {
		return nil, fmt.Errorf("%d bits: %w", bits, ErrUnsupportedBitDepth)
	}

	return &FLACDecoder{
		stream: stream,
		format: Format{SampleRate: int(stream.Info.SampleRate), Channels: channels, BitDepth: 16},
		shift:  bits - 16,
	}, nil
}

// Format returns the decoded PCM format
func (d *FLACDecoder) Format() Format { return d.format }

// ReadChunk fills dst from decoded frames, carrying leftovers between calls
func (d *FLACDecoder) ReadChunk(dst []byte) (int, error) {
	dst = dst[:len(dst)-len(dst)%d.format.BlockAlign()]
	for len(d.pending) < len(dst) && !d.eof {
		frame, err := d.stream.ParseNext()
		if err == io.EOF {
			d.eof = true
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}

		samples := len(frame.Subframes[0].Samples)
		for i := 0; i < samples; i++ {
			for ch := 0; ch < d.format.Channels; ch++ {
				v := d.scale(frame.Subframes[ch].Samples[i])
				d.pending = append(d.pending, byte(v), byte(v>>8))
			}
		}
	}

	if len(d.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(dst, d.pending)
	d.pending = d.pending[:copy(d.pending, d.pending[n:])]
	return n, nil
}

func (d *FLACDecoder) scale(s int32) int16 {
	switch {
	case d.shift > 0:
		return int16(s >> d.shift)
	case d.shift < 0:
		return int16(s << -d.shift)
	default:
		return int16(s)
	}
}

// Close releases nothing; the caller owns the stream
func (d *FLACDecoder) Close() error { return nil }
