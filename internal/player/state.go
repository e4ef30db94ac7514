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

// Package player drains the playback queue and renders tracks through the
// audio sink.
package player

// State is the position of the worker within one cycle
type State int32

const (
	WaitingForSignal State = iota
	Draining
	ControlDirective
	RealPlayback
)

func (s State) String() string {
	switch s {
	case WaitingForSignal:
		return "waiting"
	case Draining:
		return "draining"
	case ControlDirective:
		return "directive"
	case RealPlayback:
		return "playing"
	default:
		return "unknown"
	}
}
