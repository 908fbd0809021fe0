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
	"time"

	"github.com/ctessum/sparse"
)

// Cal1 reads CALIOP level-1 files: continuous per-shot backscatter
// profiles plus ancillary meteorological fields. Most read methods
// take a decimation factor navg (horizontal averaging over that many
// profiles) and an optional shot sub-range. Reads are independent and
// idempotent; after Close every read fails with ErrClosed.
//
//	c, err := caliop.OpenLevel1("CAL_LID_L1-ValStage1-V3-01.2010-02-05T01-47-40ZN.hdf")
//	...
//	lon, lat, err := c.Coords(15, nil)
//	atb, err := c.ATB(15, nil)
//	...
//	c.Close()
type Cal1 struct {
	*File

	// Grids holds the vertical coordinate tables used for
	// regridding; DefaultGrids() unless overridden before reading.
	Grids *Grids

	// ValidRMS marks the shots that passed the RMS baseline
	// threshold supplied at open time, or is nil if none was.
	// Computed once at open, never mutated afterward.
	ValidRMS []bool
}

// OpenLevel1 opens a level-1 file.
func OpenLevel1(path string) (*Cal1, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return &Cal1{File: f, Grids: DefaultGrids()}, nil
}

// OpenLevel1MaxRMS opens a level-1 file and computes the shot
// validity mask: shots whose parallel RMS baseline is at or above
// maxRMS are excluded from every subsequent averaging operation.
func OpenLevel1MaxRMS(path string, maxRMS float64) (*Cal1, error) {
	c, err := OpenLevel1(path)
	if err != nil {
		return nil, err
	}
	rms, err := c.ParallelRMSBaseline(1, nil)
	if err != nil {
		c.Close()
		return nil, err
	}
	if rms != nil {
		c.ValidRMS = make([]bool, len(rms))
		for i, v := range rms {
			c.ValidRMS[i] = v < maxRMS
		}
	}
	return c, nil
}

// validFor aligns the RMS validity mask with a shot sub-range.
func (c *Cal1) validFor(idx *Range) []bool {
	if c.ValidRMS == nil || idx == nil {
		return c.ValidRMS
	}
	return c.ValidRMS[idx.Start:idx.End]
}

// readVar reads a variable, sub-sets it to idx, and averages it over
// navg shots, dispatching on rank to the vector or array reducer. A
// missing variable or a navg larger than the shot count yields a nil
// result with no error; callers routinely probe for both.
func (c *Cal1) readVar(name string, navg int, idx *Range, missing *float64) (*sparse.DenseArray, error) {
	if navg == 0 {
		return sparse.ZerosDense(0), nil
	}
	raw, err := recoverMissingVar(c.readSDS(name))
	if raw == nil || err != nil {
		return nil, err
	}
	if navg > raw.Shape[0] {
		return nil, nil
	}
	data, err := subsetRows(raw, idx)
	if err != nil {
		return nil, err
	}
	if navg > 1 {
		switch len(data.Shape) {
		case 1:
			v := VectorAverage(data.Elements, navg, c.validFor(idx), missing)
			data = sparse.ZerosDense(len(v))
			copy(data.Elements, v)
		default:
			data = ArrayAverage(data, navg, c.validFor(idx), missing, false)
		}
	}
	return data, nil
}

// readVector is readVar for rank-1 variables.
func (c *Cal1) readVector(name string, navg int, idx *Range, missing *float64) ([]float64, error) {
	data, err := c.readVar(name, navg, idx, missing)
	if data == nil || err != nil {
		return nil, err
	}
	return data.Elements, nil
}

// readStd reads a rank-2 variable and reduces it to the per-block
// standard deviation over navg shots.
func (c *Cal1) readStd(name string, navg int) (*sparse.DenseArray, error) {
	raw, err := recoverMissingVar(c.readSDS(name))
	if raw == nil || err != nil {
		return nil, err
	}
	return ArrayStd(raw, navg, c.ValidRMS), nil
}

// UTCTime reads the profile UTC time codes (YYMMDD.ffffff),
// decimated by keeping the first shot of each navg-sized block;
// timestamps are never averaged.
func (c *Cal1) UTCTime(navg int, idx *Range) ([]float64, error) {
	return c.readTimeLike("Profile_UTC_Time", navg, idx)
}

// Time reads the profile time (TAI seconds), decimated like UTCTime.
func (c *Cal1) Time(navg int, idx *Range) ([]float64, error) {
	return c.readTimeLike("Profile_Time", navg, idx)
}

func (c *Cal1) readTimeLike(name string, navg int, idx *Range) ([]float64, error) {
	if navg == 0 {
		return []float64{}, nil
	}
	t, err := c.readVector(name, 1, nil, nil)
	if t == nil || err != nil {
		return nil, err
	}
	if navg > len(t) {
		return nil, nil
	}
	if idx != nil {
		if err := checkRange(idx, len(t)); err != nil {
			return nil, err
		}
		t = t[idx.Start:idx.End]
	}
	if navg > 1 {
		t = decimateFirst(t, navg)
	}
	return t, nil
}

// Datetimes decodes the decimated UTC time codes into timestamps.
func (c *Cal1) Datetimes(navg int) ([]time.Time, error) {
	utc, err := c.UTCTime(navg, nil)
	if utc == nil || err != nil {
		return nil, err
	}
	return DecodeUTCSeries(utc), nil
}

// Coords reads profile longitude and latitude, averaged over navg.
func (c *Cal1) Coords(navg int, idx *Range) (lon, lat []float64, err error) {
	lat, err = c.readVector("Latitude", navg, idx, nil)
	if err != nil {
		return nil, nil, err
	}
	lon, err = c.readVector("Longitude", navg, idx, nil)
	if err != nil {
		return nil, nil, err
	}
	return lon, lat, nil
}

// SurfaceElevation reads the surface elevation [km], averaged over
// navg.
func (c *Cal1) SurfaceElevation(navg int, idx *Range) ([]float64, error) {
	return c.readVector("Surface_Elevation", navg, idx, nil)
}

// ATB reads the 532 nm attenuated total backscatter profiles,
// averaged over navg. Shape [nprof/navg, nz].
func (c *Cal1) ATB(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Total_Attenuated_Backscatter_532", navg, idx, nil)
}

// ATBStd reduces the 532 nm attenuated total backscatter to its
// standard deviation over navg-shot blocks.
func (c *Cal1) ATBStd(navg int) (*sparse.DenseArray, error) {
	return c.readStd("Total_Attenuated_Backscatter_532", navg)
}

// ATB1064 reads the 1064 nm attenuated backscatter profiles.
func (c *Cal1) ATB1064(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Attenuated_Backscatter_1064", navg, idx, nil)
}

// Perp reads the 532 nm perpendicular attenuated backscatter
// profiles.
func (c *Cal1) Perp(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Perpendicular_Attenuated_Backscatter_532", navg, idx, nil)
}

// ParallelRMSBaseline reads the 532 nm parallel RMS baseline
// [counts], averaged over navg with -9999 treated as missing.
func (c *Cal1) ParallelRMSBaseline(navg int, idx *Range) ([]float64, error) {
	missing := -9999.
	return c.readVector("Parallel_RMS_Baseline_532", navg, idx, &missing)
}

// CCU532 reads the 532 nm calibration constant uncertainty.
func (c *Cal1) CCU532(navg int, idx *Range) ([]float64, error) {
	return c.readVector("Calibration_Constant_Uncertainty_532", navg, idx, nil)
}

// Pressure reads the ancillary pressure field [hPa] on the
// meteorological grid. Shape [nprof/navg, nlevels].
func (c *Cal1) Pressure(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Pressure", navg, idx, nil)
}

// Mol reads the ancillary molecular number density on the
// meteorological grid.
func (c *Cal1) Mol(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Molecular_Number_Density", navg, idx, nil)
}

// Temperature reads the ancillary temperature field [degC] on the
// meteorological grid.
func (c *Cal1) Temperature(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Temperature", navg, idx, nil)
}

// RH reads the ancillary relative humidity field on the
// meteorological grid.
func (c *Cal1) RH(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Relative_Humidity", navg, idx, nil)
}

// TropopauseHeight reads the ancillary tropopause height [km].
func (c *Cal1) TropopauseHeight(navg int, idx *Range) ([]float64, error) {
	return c.readVector("Tropopause_Height", navg, idx, nil)
}

// TropopauseTemperature reads the ancillary tropopause temperature
// [degC].
func (c *Cal1) TropopauseTemperature(navg int, idx *Range) ([]float64, error) {
	return c.readVector("Tropopause_Temperature", navg, idx, nil)
}

// ValidProfiles returns the percentage of RMS-valid shots in each
// navg-sized averaging block, or nil if no RMS threshold was supplied
// at open time. With navg < 2 each shot is its own block, reported as
// 0 or 100.
func (c *Cal1) ValidProfiles(navg int) []float64 {
	if c.ValidRMS == nil {
		return nil
	}
	if navg < 2 {
		out := make([]float64, len(c.ValidRMS))
		for i, ok := range c.ValidRMS {
			if ok {
				out[i] = 100
			}
		}
		return out
	}
	n := blockCount(len(c.ValidRMS), navg)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var nvalid int
		for j := i * navg; j < blockEnd(i, navg); j++ {
			if c.ValidRMS[j] {
				nvalid++
			}
		}
		out[i] = 100 * float64(nvalid) / float64(navg-1)
	}
	return out
}

// regridded reads a meteorological-grid field and interpolates it
// onto the lidar altitude grid.
func (c *Cal1) regridded(read func(int, *Range) (*sparse.DenseArray, error), navg int, idx *Range) (*sparse.DenseArray, error) {
	field, err := read(navg, idx)
	if field == nil || err != nil {
		return nil, err
	}
	return RemapAltitude(field, c.Grids.Met, c.Grids.Lidar), nil
}

// PressureOnLidarAlt reads the ancillary pressure field interpolated
// onto the lidar altitude grid. Shape [nprof/navg, nz].
func (c *Cal1) PressureOnLidarAlt(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.regridded(c.Pressure, navg, idx)
}

// MolOnLidarAlt reads the ancillary molecular number density
// interpolated onto the lidar altitude grid.
func (c *Cal1) MolOnLidarAlt(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.regridded(c.Mol, navg, idx)
}

// TemperatureOnLidarAlt reads the ancillary temperature field
// interpolated onto the lidar altitude grid.
func (c *Cal1) TemperatureOnLidarAlt(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.regridded(c.Temperature, navg, idx)
}

// RHOnLidarAlt reads the ancillary relative humidity field
// interpolated onto the lidar altitude grid.
func (c *Cal1) RHOnLidarAlt(navg int, idx *Range) (*sparse.DenseArray, error) {
	return c.regridded(c.RH, navg, idx)
}

// MolCalibrationCoef reads the averaged backscatter and regridded
// molecular density and computes the per-profile calibration
// coefficient. Shape [nprof/navg].
func (c *Cal1) MolCalibrationCoef(navg int, idx *Range, cal Calibration) ([]float64, error) {
	mol, err := c.MolOnLidarAlt(navg, idx)
	if mol == nil || err != nil {
		return nil, err
	}
	atb, err := c.ATB(navg, idx)
	if atb == nil || err != nil {
		return nil, err
	}
	return MolCalibrationCoef(atb, mol, c.Grids.Lidar, c.ZCode, cal)
}

// MolOnLidarAltCalibrated returns the molecular backscatter estimate
// at 532 nm: the regridded molecular number density scaled by the
// calibration coefficient. Shape [nprof/navg, nz].
func (c *Cal1) MolOnLidarAltCalibrated(navg int, idx *Range, cal Calibration) (*sparse.DenseArray, error) {
	mol, err := c.MolOnLidarAlt(navg, idx)
	if mol == nil || err != nil {
		return nil, err
	}
	atb, err := c.ATB(navg, idx)
	if atb == nil || err != nil {
		return nil, err
	}
	coef, err := MolCalibrationCoef(atb, mol, c.Grids.Lidar, c.ZCode, cal)
	if err != nil {
		return nil, err
	}
	CalibrateMol(mol, coef)
	return mol, nil
}

// ScatteringRatio returns the ratio of the attenuated total
// backscatter to the calibrated molecular backscatter, both at
// 532 nm. Departure from 1 indicates particulate scattering.
func (c *Cal1) ScatteringRatio(navg int, idx *Range, cal Calibration) (*sparse.DenseArray, error) {
	molCalib, err := c.MolOnLidarAltCalibrated(navg, idx, cal)
	if molCalib == nil || err != nil {
		return nil, err
	}
	atb, err := c.ATB(navg, idx)
	if atb == nil || err != nil {
		return nil, err
	}
	return ScatteringRatio(atb, molCalib), nil
}
