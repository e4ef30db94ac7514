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

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder streams 16-bit stereo PCM out of an MP3 file
type MP3Decoder struct {
	decoder *mp3.Decoder
	format  Format
}

// NewMP3Decoder reads the first frame of r to learn the sample rate
func NewMP3Decoder(r io.ReadSeeker) (*MP3Decoder, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w: %w", ErrBadMagic, err)
	}
	return &MP3Decoder{
		decoder: decoder,
		// go-mp3 always outputs interleaved 16-bit stereo
		format: Format{SampleRate: decoder.SampleRate(), Channels: 2, BitDepth: 16},
	}, nil
}

// Format returns the decoded PCM format
func (d *MP3Decoder) Format() Format { return d.format }

// ReadChunk decodes up to len(dst) bytes, rounded down to whole frames
func (d *MP3Decoder) ReadChunk(dst []byte) (int, error) {
	dst = dst[:len(dst)-len(dst)%d.format.BlockAlign()]
	n, err := readFull(d.decoder.Read, dst)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("failed to read MP3 data: %w", err)
	}
	return n, err
}

// Close releases nothing; the caller owns the stream
func (d *MP3Decoder) Close() error { return nil }
