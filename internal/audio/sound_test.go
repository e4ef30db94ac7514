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
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSound_RoundTrip(t *testing.T) {
	original := &Sound{
		SampleRate: 22050,
		Frames: []Frame{
			{L: 0, R: 0},
			{L: 1, R: -1},
			{L: 0.5, R: -0.5},
			{L: 0.123456, R: -0.987654},
			{L: 1e-5, R: -1e-5},
		},
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		original.Frames = append(original.Frames, Frame{L: rng.Float32()*2 - 1, R: rng.Float32()*2 - 1})
	}

	path := filepath.Join(t.TempDir(), "roundtrip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, EncodeSound(f, original))
	require.NoError(t, f.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	h, err := ParseWAVHeader(in)
	require.NoError(t, err)
	assert.Equal(t, Format{SampleRate: 22050, Channels: 2, BitDepth: 16}, h.Format())

	decoded, err := DecodeSound(in)
	require.NoError(t, err)
	assert.Equal(t, original.SampleRate, decoded.SampleRate)
	require.Len(t, decoded.Frames, len(original.Frames))

	for i := range original.Frames {
		assert.InDelta(t, original.Frames[i].L, decoded.Frames[i].L, 1.0/32767, "frame %d left", i)
		assert.InDelta(t, original.Frames[i].R, decoded.Frames[i].R, 1.0/32767, "frame %d right", i)
	}
}

func TestEncodeSound_Clamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clamp.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, EncodeSound(f, &Sound{SampleRate: 8000, Frames: []Frame{{L: 1.5, R: -2}}}))
	require.NoError(t, f.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	decoded, err := DecodeSound(in)
	require.NoError(t, err)
	require.Len(t, decoded.Frames, 1)
	assert.Equal(t, Frame{L: 1, R: -1}, decoded.Frames[0])
}

func TestEncodeSound_RejectsZeroRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ErrorIs(t, EncodeSound(f, &Sound{}), ErrUnsupportedFormat)
}

func TestDecodeSound_Scaling(t *testing.T) {
	t.Run("mono_16_expands_to_stereo", func(t *testing.T) {
		data := []byte{0x00, 0x80, 0xff, 0x7f, 0x00, 0x00} // -32768, 32767, 0
		snd, err := DecodeSound(bytes.NewReader(pcmWAV(1, 8000, 16, data)))
		require.NoError(t, err)

		assert.Equal(t, []Frame{{L: -1, R: -1}, {L: 1, R: 1}, {L: 0, R: 0}}, snd.Frames)
	})

	t.Run("stereo_8", func(t *testing.T) {
		data := []byte{0, 255, 128, 128}
		snd, err := DecodeSound(bytes.NewReader(pcmWAV(2, 8000, 8, data)))
		require.NoError(t, err)

		assert.Equal(t, []Frame{{L: -1, R: 1}, {L: 0, R: 0}}, snd.Frames)
	})

	t.Run("invalid_container", func(t *testing.T) {
		_, err := DecodeSound(bytes.NewReader([]byte("nope")))
		assert.ErrorIs(t, err, ErrBadMagic)
	})
}

func TestNoiseSound(t *testing.T) {
	snd := NoiseSound(44100, 4410, rand.New(rand.NewSource(1)))

	assert.Equal(t, 44100, snd.SampleRate)
	assert.Len(t, snd.Frames, 4410)
	assert.InDelta(t, 0.1, snd.Duration(), 1e-9)

	limit := float32(NoiseAmplitude) / 32767
	distinct := make(map[float32]bool)
	for _, fr := range snd.Frames {
		assert.Equal(t, fr.L, fr.R)
		assert.LessOrEqual(t, fr.L, limit)
		assert.GreaterOrEqual(t, fr.L, -float32(NoiseAmplitude)/32768)
		distinct[fr.L] = true
	}
	assert.Greater(t, len(distinct), 100)

	again := NoiseSound(44100, 4410, rand.New(rand.NewSource(1)))
	assert.Equal(t, snd.Frames, again.Frames, "same seed, same noise")
}
