//go:build linux

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

package watchdog

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultDevicePath is the Linux watchdog character device
const DefaultDevicePath = "/dev/watchdog"

// DeviceTimer drives a Linux watchdog device. Closing the device without the
// magic character leaves it armed, so a crashed process still gets reset.
type DeviceTimer struct {
	path string
	file *os.File
}

// NewDeviceTimer creates a timer for the watchdog device at path
func NewDeviceTimer(path string) *DeviceTimer {
	if path == "" {
		path = DefaultDevicePath
	}
	return &DeviceTimer{path: path}
}

// Arm opens the device and programs the timeout (whole seconds, rounded up)
func (d *DeviceTimer) Arm(timeout time.Duration) error {
	if d.file != nil {
		return fmt.Errorf("watchdog device %s already armed", d.path)
	}
	f, err := os.OpenFile(d.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open watchdog device: %w", err)
	}

	seconds := int((timeout + time.Second - 1) / time.Second)
	if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, seconds); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to set watchdog timeout to %ds: %w", seconds, err)
	}

	d.file = f
	return nil
}

// Feed writes a keepalive to the device
func (d *DeviceTimer) Feed() error {
	if d.file == nil {
		return fmt.Errorf("watchdog device %s not armed", d.path)
	}
	if _, err := d.file.Write([]byte{0}); err != nil {
		return fmt.Errorf("failed to feed watchdog device: %w", err)
	}
	return nil
}

// Disarm writes the magic close character and closes the device
func (d *DeviceTimer) Disarm() error {
	if d.file == nil {
		return nil
	}
	_, werr := d.file.Write([]byte("V"))
	cerr := d.file.Close()
	d.file = nil
	if werr != nil {
		return fmt.Errorf("failed to write magic close: %w", werr)
	}
	return cerr
}
