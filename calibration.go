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
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// AtbMax is the maximum plausible |attenuated backscatter| for
// calibration screening, keyed by day/night code. Backscatter above
// it in the lower stratosphere is noise (and if it is not noise we do
// not want it for calibration anyway).
var AtbMax = map[string]float64{"ZN": 1e-4, "ZD": 1}

// IatbBounds is the interval the reference-band-averaged backscatter
// must fall in for a profile to enter the calibration moving average,
// keyed by day/night code.
var IatbBounds = map[string][2]float64{
	"ZN": {1e-5, 8e-5},
	"ZD": {-8e-3, 8e-3},
}

// Calibration holds the molecular calibration parameters: the
// horizontal moving-window half-width (profiles) and the vertical
// reference band (km), an altitude range assumed free of particulate
// scattering.
type Calibration struct {
	Navgh      int
	ZMin, ZMax float64
}

// DefaultCalibration is the standard configuration: half-width 50
// profiles, reference band 30-34 km.
func DefaultCalibration() Calibration {
	return Calibration{Navgh: 50, ZMin: 30, ZMax: 34}
}

// MolCalibrationCoef computes the per-profile molecular calibration
// coefficient from collocated attenuated-backscatter and molecular
// number density fields, both profiles × levels on the altitude grid
// alt. zcode selects the day/night screening constants.
//
// Both fields are screened in place: |atb| above AtbMax[zcode] and
// negative mol values become NaN and are excluded from all
// subsequent statistics. Each field is then averaged vertically over
// the reference band, and the coefficient at profile i is the ratio
// of the window means over profiles [max(0, i-navgh),
// min(nprof-1, i+navgh)), keeping only in-bound backscatter values on
// the atb side. The bound filter never applies to the mol side; the
// backscatter is the noisy quantity. A window with no in-bound
// backscatter yields a NaN coefficient, which propagates.
func MolCalibrationCoef(atb, mol *sparse.DenseArray, alt []float64, zcode string, cal Calibration) ([]float64, error) {
	max, ok := AtbMax[zcode]
	if !ok {
		return nil, fmt.Errorf("caliop: unknown day/night code %q", zcode)
	}
	bounds := IatbBounds[zcode]

	screen(atb, func(v float64) bool { return math.Abs(v) > max })
	screen(mol, func(v float64) bool { return v < 0 })

	atbBand := bandMean(atb, alt, cal.ZMin, cal.ZMax)
	molBand := bandMean(mol, alt, cal.ZMin, cal.ZMax)

	nprof := mol.Shape[0]
	coef := make([]float64, nprof)
	for i := 0; i < nprof; i++ {
		lo := maxInt(0, i-cal.Navgh)
		hi := minInt(nprof-1, i+cal.Navgh)
		var atbSum, molSum float64
		var atbN, molN int
		for j := lo; j < hi; j++ {
			if a := atbBand[j]; !math.IsNaN(a) && a > bounds[0] && a < bounds[1] {
				atbSum += a
				atbN++
			}
			if m := molBand[j]; !math.IsNaN(m) {
				molSum += m
				molN++
			}
		}
		// An empty window on either side divides into NaN; anomalous
		// profiles propagate as no-value rather than aborting the
		// orbit.
		coef[i] = (atbSum / float64(atbN)) / (molSum / float64(molN))
	}
	return coef, nil
}

// CalibrateMol multiplies each profile of mol, in place, by that
// profile's calibration coefficient, broadcasting along the vertical,
// yielding the calibrated molecular backscatter estimate.
func CalibrateMol(mol *sparse.DenseArray, coef []float64) {
	nz := mol.Shape[1]
	for i := 0; i < mol.Shape[0]; i++ {
		for k := 0; k < nz; k++ {
			mol.Set(mol.Get(i, k)*coef[i], i, k)
		}
	}
}

// ScatteringRatio divides the attenuated backscatter field
// element-wise by the calibrated molecular backscatter field. Zero or
// NaN denominators propagate as ±Inf/NaN; that is an accepted
// non-fatal anomaly to be filtered downstream.
func ScatteringRatio(atb, molCalib *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(atb.Shape...)
	for i, v := range atb.Elements {
		out.Elements[i] = v / molCalib.Elements[i]
	}
	return out
}

// screen replaces, in place, every element satisfying bad with NaN.
func screen(a *sparse.DenseArray, bad func(float64) bool) {
	for i, v := range a.Elements {
		if bad(v) {
			a.Elements[i] = math.NaN()
		}
	}
}

// bandMean averages each profile over the levels whose altitude lies
// in [zmin, zmax], ignoring NaN. A profile with no finite sample in
// the band is NaN.
func bandMean(a *sparse.DenseArray, alt []float64, zmin, zmax float64) []float64 {
	var levels []int
	for k, z := range alt {
		if z >= zmin && z <= zmax {
			levels = append(levels, k)
		}
	}
	out := make([]float64, a.Shape[0])
	for i := range out {
		var sum float64
		var n int
		for _, k := range levels {
			if v := a.Get(i, k); !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(n)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
