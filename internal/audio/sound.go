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
	"math"
	"math/rand"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// NoiseAmplitude bounds the integer samples NoiseSound draws
const NoiseAmplitude = 30000

// Frame is one stereo sample pair in [-1, 1]
type Frame struct {
	L, R float32
}

// Sound is a fully decoded stereo clip
type Sound struct {
	SampleRate int
	Frames     []Frame
}

// Duration returns the playing time of s
func (s *Sound) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(len(s.Frames)) / float64(s.SampleRate)
}

// DecodeSound loads a whole PCM WAV stream as float frames. Mono input is
// copied to both channels.
func DecodeSound(r io.ReadSeeker) (*Sound, error) {
	dec, err := NewWAVDecoder(r)
	if err != nil {
		return nil, err
	}
	h := dec.Header()

	data := make([]byte, h.DataSize)
	if _, err := dec.ReadChunk(data); err != nil && err != io.EOF {
		return nil, err
	}

	f := h.Format()
	snd := &Sound{SampleRate: f.SampleRate, Frames: make([]Frame, h.Frames())}
	bytesPerSample := f.BitDepth / 8
	for i := range snd.Frames {
		base := i * f.BlockAlign()
		l := sampleToFloat(data[base:], f.BitDepth)
		r := l
		if f.Channels == 2 {
			r = sampleToFloat(data[base+bytesPerSample:], f.BitDepth)
		}
		snd.Frames[i] = Frame{L: l, R: r}
	}
	return snd, nil
}

// EncodeSound writes s as a 16-bit stereo PCM WAV, clamping out of range
// samples.
func EncodeSound(w io.WriteSeeker, s *Sound) error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample rate %d: %w", s.SampleRate, ErrUnsupportedFormat)
	}

	enc := wav.NewEncoder(w, s.SampleRate, 16, 2, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: s.SampleRate},
		Data:           make([]int, 0, len(s.Frames)*2),
		SourceBitDepth: 16,
	}
	for _, fr := range s.Frames {
		buf.Data = append(buf.Data, floatToInt16(fr.L), floatToInt16(fr.R))
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish WAV: %w", err)
	}
	return nil
}

// NoiseSound generates frames of mono white noise, copied to both channels
func NoiseSound(sampleRate, frames int, rng *rand.Rand) *Sound {
	snd := &Sound{SampleRate: sampleRate, Frames: make([]Frame, frames)}
	for i := range snd.Frames {
		v := int16(rng.Intn(2*NoiseAmplitude+1) - NoiseAmplitude)
		x := int16ToFloat(v)
		snd.Frames[i] = Frame{L: x, R: x}
	}
	return snd
}

func sampleToFloat(b []byte, bits int) float32 {
	if bits == 8 {
		v := int(b[0]) - 128
		if v < 0 {
			return float32(v) / 128
		}
		return float32(v) / 127
	}
	return int16ToFloat(int16(uint16(b[0]) | uint16(b[1])<<8))
}

func int16ToFloat(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768
	}
	return float32(v) / 32767
}

func floatToInt16(x float32) int {
	switch {
	case x <= -1:
		return math.MinInt16
	case x >= 1:
		return math.MaxInt16
	case x < 0:
		return int(math.Round(float64(x) * 32768))
	default:
		return int(math.Round(float64(x) * 32767))
	}
}
