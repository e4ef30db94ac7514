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

	"github.com/go-audio/riff"
)

const (
	wavFormatPCM    = 1
	fmtChunkSize    = 16
	riffHeaderSize  = 12
	chunkHeaderSize = 8
)

// WAVHeader holds the container fields found ahead of the sample data
type WAVHeader struct {
	RIFFSize      uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
	DataOffset    int64
}

// Format converts the header into a PCM format
func (h WAVHeader) Format() Format {
	return Format{
		SampleRate: int(h.SampleRate),
		Channels:   int(h.NumChannels),
		BitDepth:   int(h.BitsPerSample),
	}
}

// Frames returns the number of sample frames in the data chunk
func (h WAVHeader) Frames() int {
	if h.BlockAlign == 0 {
		return 0
	}
	return int(h.DataSize / uint32(h.BlockAlign))
}

// ParseWAVHeader walks the RIFF chunks of r up to the data chunk and leaves
// r positioned at the first sample. Unknown chunks are skipped, but never
// past the end of the stream.
func ParseWAVHeader(r io.ReadSeeker) (WAVHeader, error) {
	var h WAVHeader

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return h, fmt.Errorf("failed to measure stream: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return h, fmt.Errorf("failed to rewind stream: %w", err)
	}
	if size < riffHeaderSize {
		return h, fmt.Errorf("%d byte stream: %w", size, ErrBadMagic)
	}

	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return h, fmt.Errorf("reading RIFF header (%v): %w", err, ErrBadMagic)
	}
	if p.Format != riff.WavFormatID {
		return h, fmt.Errorf("got %q form: %w", p.Format[:], ErrBadMagic)
	}
	h.RIFFSize = p.Size

	// IDnSize swallows short size reads, so every header is bounds checked first
	pos := int64(riffHeaderSize)
	haveFmt := false
	for {
		if size-pos < chunkHeaderSize {
			return h, ErrNoDataChunk
		}
		id, declared, err := p.IDnSize()
		if err != nil {
			return h, fmt.Errorf("reading chunk header: %w", err)
		}
		pos += chunkHeaderSize
		body := int64(declared)
		padded := body + body%2
		chunk := &riff.Chunk{ID: id, Size: int(padded), R: r}

		switch id {
		case riff.FmtID:
			if body < fmtChunkSize {
				return h, fmt.Errorf("fmt chunk of %d bytes: %w", body, ErrUnsupportedFormat)
			}
			if pos+padded > size {
				return h, fmt.Errorf("fmt chunk of %d bytes at offset %d: %w", body, pos, ErrChunkOutOfBounds)
			}
			if err := chunk.DecodeWavHeader(p); err != nil {
				return h, fmt.Errorf("reading fmt chunk (%v): %w", err, ErrTruncated)
			}
			h.AudioFormat = p.WavAudioFormat
			h.NumChannels = p.NumChannels
			h.SampleRate = p.SampleRate
			h.ByteRate = p.AvgBytesPerSec
			h.BlockAlign = p.BlockAlign
			h.BitsPerSample = p.BitsPerSample
			if err := validateFmt(h); err != nil {
				return h, err
			}
			haveFmt = true
			pos += padded

		case riff.DataFormatID:
			if !haveFmt {
				return h, fmt.Errorf("data chunk before fmt chunk: %w", ErrUnsupportedFormat)
			}
			if body%int64(h.BlockAlign) != 0 {
				return h, fmt.Errorf("data size %d not a multiple of block align %d: %w", body, h.BlockAlign, ErrTruncated)
			}
			if pos+body > size {
				return h, fmt.Errorf("data chunk claims %d bytes, stream holds %d: %w", body, size-pos, ErrTruncated)
			}
			h.DataSize = declared
			h.DataOffset = pos
			return h, nil

		default:
			if pos+padded > size {
				return h, fmt.Errorf("chunk %q of %d bytes at offset %d: %w", id[:], body, pos, ErrChunkOutOfBounds)
			}
			chunk.Drain()
			pos += padded
		}
	}
}

func validateFmt(h WAVHeader) error {
	if h.AudioFormat != wavFormatPCM {
		return fmt.Errorf("format tag %d: %w", h.AudioFormat, ErrUnsupportedFormat)
	}
	if h.NumChannels != 1 && h.NumChannels != 2 {
		return fmt.Errorf("%d channels: %w", h.NumChannels, ErrUnsupportedChannels)
	}
	if h.BitsPerSample != 8 && h.BitsPerSample != 16 {
		return fmt.Errorf("%d bits: %w", h.BitsPerSample, ErrUnsupportedBitDepth)
	}
	if h.SampleRate == 0 {
		return fmt.Errorf("zero sample rate: %w", ErrUnsupportedFormat)
	}
	if want := h.NumChannels * h.BitsPerSample / 8; h.BlockAlign != want {
		return fmt.Errorf("block align %d, expected %d: %w", h.BlockAlign, want, ErrUnsupportedFormat)
	}
	return nil
}

// WAVDecoder streams the data chunk of a PCM WAV file
type WAVDecoder struct {
	r         io.Reader
	header    WAVHeader
	remaining int64
}

// NewWAVDecoder parses the header of r and positions it at the samples
func NewWAVDecoder(r io.ReadSeeker) (*WAVDecoder, error) {
	h, err := ParseWAVHeader(r)
	if err != nil {
		return nil, err
	}
	return &WAVDecoder{r: r, header: h, remaining: int64(h.DataSize)}, nil
}

// Header returns the parsed container header
func (d *WAVDecoder) Header() WAVHeader { return d.header }

// Format returns the PCM format of the data chunk
func (d *WAVDecoder) Format() Format { return d.header.Format() }

// ReadChunk copies up to len(dst) bytes of samples. A stream that ends
// before the declared data size yields ErrTruncated.
func (d *WAVDecoder) ReadChunk(dst []byte) (int, error) {
	if d.remaining == 0 {
		return 0, io.EOF
	}
	want := int64(len(dst))
	if want > d.remaining {
		want = d.remaining
	}
	n, err := io.ReadFull(d.r, dst[:want])
	d.remaining -= int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, fmt.Errorf("%d bytes missing from data chunk: %w", d.remaining, ErrTruncated)
		}
		return n, fmt.Errorf("reading samples: %w", err)
	}
	return n, nil
}

// Close releases nothing; the caller owns the stream
func (d *WAVDecoder) Close() error { return nil }
