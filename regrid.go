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
	"sort"

	"github.com/ctessum/sparse"
)

// RemapAltitude linearly interpolates each row of the 2-D field z
// (profiles × levels on the "from" altitude grid) onto the "to"
// altitude grid. Both grids decrease with index, so coordinates and
// values are reversed into ascending order before interpolating.
// Target altitudes outside the source range take the nearest endpoint
// value; the clamping is a deliberate boundary policy, not an
// accident of the interpolation primitive.
func RemapAltitude(z *sparse.DenseArray, from, to []float64) *sparse.DenseArray {
	nprof := z.Shape[0]
	nz := z.Shape[1]

	xs := reversed(from)
	out := sparse.ZerosDense(nprof, len(to))
	ys := make([]float64, nz)
	for i := 0; i < nprof; i++ {
		for k := 0; k < nz; k++ {
			ys[nz-1-k] = z.Get(i, k)
		}
		for k, alt := range to {
			out.Set(interpClamped(alt, xs, ys), i, k)
		}
	}
	return out
}

// interpClamped evaluates the piecewise-linear function through
// (xs, ys) at x, where xs is strictly ascending. Outside [xs[0],
// xs[len-1]] the endpoint value is returned.
func interpClamped(x float64, xs, ys []float64) float64 {
	n := len(xs)
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	// j is the first index with xs[j] >= x; x lies in (xs[j-1], xs[j]].
	j := sort.SearchFloat64s(xs, x)
	if xs[j] == x {
		return ys[j]
	}
	t := (x - xs[j-1]) / (xs[j] - xs[j-1])
	return ys[j-1] + t*(ys[j]-ys[j-1])
}

func reversed(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}
