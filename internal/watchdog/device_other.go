//go:build !linux

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
	"errors"
	"time"
)

// DefaultDevicePath is the Linux watchdog character device
const DefaultDevicePath = "/dev/watchdog"

// DeviceTimer is unavailable off Linux; arming always fails
type DeviceTimer struct {
	path string
}

// NewDeviceTimer creates a timer for the watchdog device at path
func NewDeviceTimer(path string) *DeviceTimer {
	return &DeviceTimer{path: path}
}

// Arm implements HardwareTimer
func (d *DeviceTimer) Arm(time.Duration) error {
	return errors.New("watchdog devices are only supported on linux")
}

// Feed implements HardwareTimer
func (d *DeviceTimer) Feed() error {
	return errors.New("watchdog device not armed")
}

// Disarm implements HardwareTimer
func (d *DeviceTimer) Disarm() error { return nil }
