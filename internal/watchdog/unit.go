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
	"context"
	"sync/atomic"
)

// unit is the identity of one supervised execution context. Liveness is
// tracked per unit, so a registration only means something when it is made
// from inside the unit it describes.
type unit struct {
	name string
	reg  atomic.Pointer[Registration]
}

type unitKey struct{}

// WithUnit returns a context that identifies a new supervised execution unit.
// The task wrapper calls it from inside the goroutine it starts; every
// Register, Kick and SafeSleep must then use the returned context.
func WithUnit(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, unitKey{}, &unit{name: name})
}

// UnitName returns the name of the unit carried by ctx, or "" outside a unit
func UnitName(ctx context.Context) string {
	if u := unitFrom(ctx); u != nil {
		return u.name
	}
	return ""
}

func unitFrom(ctx context.Context) *unit {
	if ctx == nil {
		return nil
	}
	u, _ := ctx.Value(unitKey{}).(*unit)
	return u
}
