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

package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/loqalabs/loqa-chime-go/internal/audio"
	"github.com/loqalabs/loqa-chime-go/internal/cli"
)

// InspectCmd prints the header of a track file
type InspectCmd struct {
	Path string `arg:"" type:"existingfile" help:"Track to inspect."`
}

// Run prints the header fields to stdout
func (c *InspectCmd) Run(_ *Globals) error {
	return inspect(os.Stdout, c.Path)
}

func inspect(w io.Writer, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	fields := []cli.Field{{Key: "File", Value: filepath.Base(path)}}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		h, herr := audio.ParseWAVHeader(f)
		if herr != nil {
			return fmt.Errorf("%s: %w", path, herr)
		}
		seconds := float64(h.Frames()) / float64(h.SampleRate)
		fields = append(fields,
			cli.Field{Key: "Container", Value: "RIFF/WAVE"},
			cli.Field{Key: "RIFF size", Value: cli.FormatBytes(int64(h.RIFFSize))},
			cli.Field{Key: "Format tag", Value: fmt.Sprint(h.AudioFormat)},
			cli.Field{Key: "Channels", Value: fmt.Sprint(h.NumChannels)},
			cli.Field{Key: "Sample rate", Value: fmt.Sprintf("%d Hz", h.SampleRate)},
			cli.Field{Key: "Byte rate", Value: fmt.Sprint(h.ByteRate)},
			cli.Field{Key: "Block align", Value: fmt.Sprint(h.BlockAlign)},
			cli.Field{Key: "Bits per sample", Value: fmt.Sprint(h.BitsPerSample)},
			cli.Field{Key: "Data size", Value: cli.FormatBytes(int64(h.DataSize))},
			cli.Field{Key: "Data offset", Value: fmt.Sprint(h.DataOffset)},
			cli.Field{Key: "Frames", Value: fmt.Sprint(h.Frames())},
			cli.Field{Key: "Duration", Value: cli.FormatDuration(time.Duration(seconds * float64(time.Second)))},
		)
	} else {
		dec, derr := audio.NewDecoder(path, f)
		if derr != nil {
			return fmt.Errorf("%s: %w", path, derr)
		}
		defer func() { err = multierr.Append(err, dec.Close()) }()
		fields = append(fields,
			cli.Field{Key: "Container", Value: strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), "."))},
			cli.Field{Key: "Decoded as", Value: dec.Format().String()},
		)
	}

	cli.PrintSection(w, "Track")
	cli.PrintFields(w, fields)
	return nil
}

// NoiseCmd writes random noise, handy for checking speakers and the watchdog
type NoiseCmd struct {
	Output   string        `arg:"" type:"path" help:"Destination WAV file."`
	Rate     int           `default:"44100" help:"Sample rate in Hz."`
	Duration time.Duration `default:"1s" help:"Length of the noise."`
	Seed     int64         `help:"Random seed, 0 picks one from the clock."`
}

// Run encodes the noise as 16-bit stereo PCM
func (c *NoiseCmd) Run(_ *Globals) error {
	if err := c.write(); err != nil {
		return err
	}
	cli.PrintSuccess(os.Stdout, fmt.Sprintf("Wrote %s of noise to %s", cli.FormatDuration(c.Duration), c.Output))
	return nil
}

func (c *NoiseCmd) write() (err error) {
	if c.Rate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.Rate)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	frames := int(c.Duration.Seconds() * float64(c.Rate))
	snd := audio.NoiseSound(c.Rate, frames, rand.New(rand.NewSource(seed)))

	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	return audio.EncodeSound(f, snd)
}
