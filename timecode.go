/*
Copyright © 2014 the Caliop authors.
This file is part of Caliop.

Caliop is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Caliop is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Caliop.  If not, see <http://www.gnu.org/licenses/>.
*/

package caliop

import (
	"math"
	"time"
)

// The profile UTC time encoding is a fixed-point decimal YYMMDD.ffffff:
// year offset from 2000, month, day, and fraction of day.

// decodeYMD splits the integer part of a UTC time code into calendar
// year, month and day.
func decodeYMD(u float64) (year, month, day int) {
	y := math.Floor(u / 10000)
	rem := u - y*10000
	m := math.Floor(rem / 100)
	d := math.Floor(rem - m*100)
	return int(y) + 2000, int(m), int(d)
}

// secondsIntoDay extracts the fractional-day part of a UTC time code
// as whole seconds.
func secondsIntoDay(u float64) int {
	return int((u - math.Floor(u)) * 24 * 3600)
}

// DecodeUTC converts one UTC time code to a timestamp.
func DecodeUTC(u float64) time.Time {
	y, m, d := decodeYMD(u)
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(secondsIntoDay(u)) * time.Second)
}

// DecodeUTCSeries converts a time-ordered sequence of UTC time codes
// to timestamps. If the first and last samples fall on the same
// calendar date the whole sequence does too (samples are time-ordered
// within a file), so a shared base date plus per-sample second
// offsets suffices; a sequence straddling midnight decodes every
// sample independently. Both paths produce identical output for
// same-day input.
func DecodeUTCSeries(utc []float64) []time.Time {
	if len(utc) == 0 {
		return nil
	}
	y0, m0, d0 := decodeYMD(utc[0])
	y1, m1, d1 := decodeYMD(utc[len(utc)-1])
	out := make([]time.Time, len(utc))
	if y0 == y1 && m0 == m1 && d0 == d1 {
		base := time.Date(y0, time.Month(m0), d0, 0, 0, 0, 0, time.UTC)
		for i, u := range utc {
			out[i] = base.Add(time.Duration(secondsIntoDay(u)) * time.Second)
		}
		return out
	}
	for i, u := range utc {
		out[i] = DecodeUTC(u)
	}
	return out
}
