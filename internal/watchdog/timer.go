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

import "time"

// HardwareTimer abstracts the device reset timer behind the supervisor
type HardwareTimer interface {
	// Arm starts the timer with the given timeout
	Arm(timeout time.Duration) error

	// Feed resets the timer countdown
	Feed() error

	// Disarm stops the timer on graceful shutdown
	Disarm() error
}

// NopTimer is a HardwareTimer for hosts without a watchdog device. The
// supervisor still detects starved units and escalates through its fatal
// handler.
type NopTimer struct{}

// Arm implements HardwareTimer
func (NopTimer) Arm(time.Duration) error { return nil }

// Feed implements HardwareTimer
func (NopTimer) Feed() error { return nil }

// Disarm implements HardwareTimer
func (NopTimer) Disarm() error { return nil }
