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
	"log"
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/stat"
)

const (
	// FlagValue marks a reduced sample with no mask-valid
	// contributors, following the product file convention.
	FlagValue = -9999.

	// validFloor is the sample validity threshold: raw samples at or
	// below it are reserved sentinel values, not measurements.
	validFloor = -999.
)

// ReducedKind tells how a reduced block should be interpreted.
type ReducedKind uint8

const (
	// ReducedOK means the block carries a valid mean.
	ReducedOK ReducedKind = iota
	// ReducedNoData means no mask-valid shot contributed to the
	// block. Files flag this case numerically as FlagValue.
	ReducedNoData
	// ReducedNoValidSamples means the block was filtered by an
	// explicit missing sentinel and nothing survived. Historically
	// this case was left unset rather than flagged.
	ReducedNoValidSamples
)

// Reduced is one horizontally averaged sample.
//
// The two empty-block kinds exist because the processing chain has
// always used two different conventions for them: blocks emptied by
// the validity mask become the FlagValue sentinel, while blocks
// emptied by a missing-value filter stay unset (NaN here). The
// distinction is inconsistent but downstream consumers depend on it,
// so both conventions are kept rather than unified.
type Reduced struct {
	Kind  ReducedKind
	Value float64
}

// Float collapses a Reduced to the numeric file conventions:
// FlagValue for ReducedNoData, NaN for ReducedNoValidSamples.
func (r Reduced) Float() float64 {
	switch r.Kind {
	case ReducedNoData:
		return FlagValue
	case ReducedNoValidSamples:
		return math.NaN()
	}
	return r.Value
}

// blockCount returns the number of navg-sized blocks in a sequence of
// length n.
func blockCount(n, navg int) int { return n / navg }

// blockEnd returns the exclusive end of block i. The last index of
// each navg-sized block is deliberately excluded from every
// reduction; each block covers [i*navg, i*navg+navg-1).
func blockEnd(i, navg int) int { return i*navg + navg - 1 }

// VectorAverageReduced decimates v in blocks of navg samples,
// honoring the per-sample validity mask (nil means all valid) and an
// optional missing sentinel, and reports each block as a tagged
// Reduced value. Within a block, only samples above the validity
// floor contribute; with a sentinel, samples equal to it are dropped
// too.
func VectorAverageReduced(v []float64, navg int, valid []bool, missing *float64) []Reduced {
	if navg <= 0 {
		return []Reduced{}
	}
	if navg == 1 {
		out := make([]Reduced, len(v))
		for i, x := range v {
			out[i] = Reduced{Kind: ReducedOK, Value: x}
		}
		return out
	}
	out := make([]Reduced, blockCount(len(v), navg))
	for i := range out {
		var sum float64
		var n int
		for j := i * navg; j < blockEnd(i, navg); j++ {
			if valid != nil && !valid[j] {
				continue
			}
			if v[j] <= validFloor {
				continue
			}
			if missing != nil && v[j] == *missing {
				continue
			}
			sum += v[j]
			n++
		}
		if n == 0 {
			if missing != nil {
				out[i] = Reduced{Kind: ReducedNoValidSamples}
			} else {
				out[i] = Reduced{Kind: ReducedNoData}
			}
			continue
		}
		out[i] = Reduced{Kind: ReducedOK, Value: sum / float64(n)}
	}
	return out
}

// VectorAverage is VectorAverageReduced collapsed to the numeric file
// conventions. navg == 1 is the identity: the input slice is returned
// unchanged.
func VectorAverage(v []float64, navg int, valid []bool, missing *float64) []float64 {
	if navg == 1 {
		return v
	}
	r := VectorAverageReduced(v, navg, valid, missing)
	out := make([]float64, len(r))
	for i, x := range r {
		out[i] = x.Float()
	}
	return out
}

// ArrayAverage decimates a 2-D field a (shots × levels) in blocks of
// navg shots. Shots failing the validity mask are excluded whole;
// among surviving shots each vertical column averages independently
// over the samples above the validity floor, so different columns of
// the same block may average over different numbers of shots. A
// column with no valid contributor becomes FlagValue; a block with no
// mask-valid shot becomes a FlagValue row.
//
// With a missing sentinel the original convention applies instead:
// each column averages over the samples not equal to the sentinel,
// with no mask or floor filtering, optionally weighted by a
// triangular window; an all-missing column stays unset (NaN).
// Triangular weighting requires an odd navg; an even navg silently
// falls back to unweighted.
//
// navg == 1 is the identity transform.
func ArrayAverage(a *sparse.DenseArray, navg int, valid []bool, missing *float64, weighted bool) *sparse.DenseArray {
	if navg <= 0 {
		return sparse.ZerosDense(0)
	}
	if navg == 1 {
		return a
	}
	if weighted && navg%2 != 1 {
		log.Println("caliop: ArrayAverage: navg is even, turning weights off")
		weighted = false
	}
	var w []float64
	if weighted {
		w = triangleWeights(navg)
	}

	nshots, nz := a.Shape[0], a.Shape[1]
	n := blockCount(nshots, navg)
	out := sparse.ZerosDense(n, nz)

	for i := 0; i < n; i++ {
		if missing != nil {
			averageBlockMissing(a, out, i, navg, nz, *missing, w)
			continue
		}
		averageBlockMasked(a, out, i, navg, nz, valid)
	}
	return out
}

func averageBlockMasked(a, out *sparse.DenseArray, i, navg, nz int, valid []bool) {
	anyValid := false
	for j := i * navg; j < blockEnd(i, navg); j++ {
		if valid == nil || valid[j] {
			anyValid = true
			break
		}
	}
	if !anyValid {
		for k := 0; k < nz; k++ {
			out.Set(FlagValue, i, k)
		}
		return
	}
	for k := 0; k < nz; k++ {
		var sum float64
		var npts int
		for j := i * navg; j < blockEnd(i, navg); j++ {
			if valid != nil && !valid[j] {
				continue
			}
			if v := a.Get(j, k); v > validFloor {
				sum += v
				npts++
			}
		}
		if npts == 0 {
			out.Set(FlagValue, i, k)
		} else {
			out.Set(sum/float64(npts), i, k)
		}
	}
}

func averageBlockMissing(a, out *sparse.DenseArray, i, navg, nz int, missing float64, w []float64) {
	for k := 0; k < nz; k++ {
		var sum, wsum float64
		for j := i * navg; j < blockEnd(i, navg); j++ {
			v := a.Get(j, k)
			if v == missing {
				continue
			}
			wj := 1.
			if w != nil {
				wj = w[j-i*navg]
			}
			sum += wj * v
			wsum += wj
		}
		if wsum == 0 {
			out.Set(math.NaN(), i, k)
		} else {
			out.Set(sum/wsum, i, k)
		}
	}
}

// ArrayStd reduces a 2-D field to the per-block, per-column
// population standard deviation across mask-valid shots. A block with
// no valid shot becomes a FlagValue row. navg == 1 returns an
// all-zero array of matching shape.
func ArrayStd(a *sparse.DenseArray, navg int, valid []bool) *sparse.DenseArray {
	if navg <= 0 {
		return sparse.ZerosDense(0)
	}
	nshots, nz := a.Shape[0], a.Shape[1]
	if navg == 1 {
		return sparse.ZerosDense(nshots, nz)
	}
	n := blockCount(nshots, navg)
	out := sparse.ZerosDense(n, nz)
	col := make([]float64, 0, navg)
	for i := 0; i < n; i++ {
		anyValid := false
		for j := i * navg; j < blockEnd(i, navg); j++ {
			if valid == nil || valid[j] {
				anyValid = true
				break
			}
		}
		if !anyValid {
			for k := 0; k < nz; k++ {
				out.Set(FlagValue, i, k)
			}
			continue
		}
		for k := 0; k < nz; k++ {
			col = col[:0]
			for j := i * navg; j < blockEnd(i, navg); j++ {
				if valid == nil || valid[j] {
					col = append(col, a.Get(j, k))
				}
			}
			out.Set(stat.PopStdDev(col, nil), i, k)
		}
	}
	return out
}

// triangleWeights builds the 1, 2, …, ⌈navg/2⌉, …, 2, 1 window for an
// odd navg.
func triangleWeights(navg int) []float64 {
	w := make([]float64, navg)
	half := navg / 2
	for i := 0; i <= half; i++ {
		w[i] = float64(i + 1)
	}
	for i := half + 1; i < navg; i++ {
		w[i] = float64(navg - i)
	}
	return w
}

// decimateFirst keeps the first sample of each navg-sized block.
// Timestamps decimate this way rather than by averaging.
func decimateFirst(v []float64, navg int) []float64 {
	out := make([]float64, blockCount(len(v), navg))
	for i := range out {
		out[i] = v[i*navg]
	}
	return out
}
