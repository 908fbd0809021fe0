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

// Cal2 reads CALIOP level-2 layer products: discrete per-profile
// retrievals of layer geometry and integrated optical quantities. No
// horizontal averaging applies at level 2; reads take only an
// optional shot sub-range.
//
// Per-profile scalars are stored in the file as three columns
// describing the first, middle (average) and last shot of the
// averaged section; the middle column is the one exposed here.
//
//	c, err := caliop.OpenLevel2("CAL_LID_L2_05kmCLay-Prov-V3-01.2010-12-31T01-37-30ZN.hdf")
//	...
//	nl, base, top, err := c.Layers(nil)
//	...
//	c.Close()
type Cal2 struct {
	*File
}

// OpenLevel2 opens a level-2 layer file.
func OpenLevel2(path string) (*Cal2, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return &Cal2{File: f}, nil
}

func (c *Cal2) readVar(name string, idx *Range) (*sparse.DenseArray, error) {
	raw, err := recoverMissingVar(c.readSDS(name))
	if raw == nil || err != nil {
		return nil, err
	}
	return subsetRows(raw, idx)
}

// column extracts column j of a 2-D array as a vector.
func column(a *sparse.DenseArray, j int) []float64 {
	out := make([]float64, a.Shape[0])
	for i := range out {
		out[i] = a.Get(i, j)
	}
	return out
}

func (c *Cal2) middleColumn(name string, idx *Range) ([]float64, error) {
	v, err := c.readVar(name, idx)
	if v == nil || err != nil {
		return nil, err
	}
	return column(v, 1), nil
}

// Lat reads profile latitude. Shape [nprof].
func (c *Cal2) Lat(idx *Range) ([]float64, error) {
	return c.middleColumn("Latitude", idx)
}

// Lon reads profile longitude. Shape [nprof].
func (c *Cal2) Lon(idx *Range) ([]float64, error) {
	return c.middleColumn("Longitude", idx)
}

// Coords reads profile longitude and latitude.
func (c *Cal2) Coords(idx *Range) (lon, lat []float64, err error) {
	lat, err = c.Lat(idx)
	if err != nil {
		return nil, nil, err
	}
	lon, err = c.Lon(idx)
	if err != nil {
		return nil, nil, err
	}
	return lon, lat, nil
}

// Time reads the profile time (TAI) with its first/middle/last
// columns intact.
func (c *Cal2) Time(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Profile_Time", idx)
}

// UTCTime reads the profile UTC time codes (YYMMDD.ffffff).
func (c *Cal2) UTCTime(idx *Range) ([]float64, error) {
	return c.middleColumn("Profile_UTC_Time", idx)
}

// Datetimes decodes the UTC time codes into timestamps.
func (c *Cal2) Datetimes(idx *Range) ([]time.Time, error) {
	utc, err := c.UTCTime(idx)
	if utc == nil || err != nil {
		return nil, err
	}
	return DecodeUTCSeries(utc), nil
}

// Statistics532 holds the per-layer attenuated backscatter statistics
// unpacked from their 6-way interleaved storage. Each field has shape
// [nprof, nlay].
type Statistics532 struct {
	Min, Max, Mean, Std, Centroid, Skewness *sparse.DenseArray
}

// Statistics532 reads and unpacks the 532 nm attenuated backscatter
// statistics.
func (c *Cal2) Statistics532(idx *Range) (*Statistics532, error) {
	v, err := c.readVar("Attenuated_Backscatter_Statistics_532", idx)
	if v == nil || err != nil {
		return nil, err
	}
	return &Statistics532{
		Min:      strided(v, 0, 6),
		Max:      strided(v, 1, 6),
		Mean:     strided(v, 2, 6),
		Std:      strided(v, 3, 6),
		Centroid: strided(v, 4, 6),
		Skewness: strided(v, 5, 6),
	}, nil
}

// strided extracts columns offset, offset+stride, … of a 2-D array.
func strided(a *sparse.DenseArray, offset, stride int) *sparse.DenseArray {
	ncol := (a.Shape[1] - offset + stride - 1) / stride
	out := sparse.ZerosDense(a.Shape[0], ncol)
	for i := 0; i < a.Shape[0]; i++ {
		for j := 0; j < ncol; j++ {
			out.Set(a.Get(i, offset+j*stride), i, j)
		}
	}
	return out
}

// OffNadirAngle reads the off-nadir angle [deg]. Shape [nprof].
func (c *Cal2) OffNadirAngle(idx *Range) ([]float64, error) {
	v, err := c.readVar("Off_Nadir_Angle", idx)
	if v == nil || err != nil {
		return nil, err
	}
	return v.Elements, nil
}

// TropopauseHeight reads the ancillary tropopause height [km].
func (c *Cal2) TropopauseHeight(idx *Range) ([]float64, error) {
	v, err := c.readVar("Tropopause_Height", idx)
	if v == nil || err != nil {
		return nil, err
	}
	if len(v.Shape) == 2 {
		return column(v, 0), nil
	}
	return v.Elements, nil
}

// TropopauseTemperature reads the ancillary tropopause temperature
// [degC].
func (c *Cal2) TropopauseTemperature(idx *Range) ([]float64, error) {
	v, err := c.readVar("Tropopause_Temperature", idx)
	if v == nil || err != nil {
		return nil, err
	}
	return v.Elements, nil
}

// DEMSurfaceElevation reads the digital elevation model surface
// elevation [km].
func (c *Cal2) DEMSurfaceElevation(idx *Range) ([]float64, error) {
	v, err := c.readVar("DEM_Surface_Elevation", idx)
	if v == nil || err != nil {
		return nil, err
	}
	return v.Elements, nil
}

// LidarSurfaceElevation reads the lidar surface echo boundaries [km]:
// min, max, mean, stddev for the upper then the lower boundary, eight
// values per profile.
func (c *Cal2) LidarSurfaceElevation(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Lidar_Surface_Elevation", idx)
}

// Layers reads the layer geometry by profile: the number of layers
// found [nprof] and the layer base and top altitudes [nprof, nlaymax].
func (c *Cal2) Layers(idx *Range) (nl []int, base, top *sparse.DenseArray, err error) {
	nl, err = c.LayersNumber(idx)
	if nl == nil || err != nil {
		return nil, nil, nil, err
	}
	top, err = c.readVar("Layer_Top_Altitude", idx)
	if err != nil {
		return nil, nil, nil, err
	}
	base, err = c.readVar("Layer_Base_Altitude", idx)
	if err != nil {
		return nil, nil, nil, err
	}
	return nl, base, top, nil
}

// LayersNumber reads the number of layers found by profile.
func (c *Cal2) LayersNumber(idx *Range) ([]int, error) {
	v, err := c.readVar("Number_Layers_Found", idx)
	if v == nil || err != nil {
		return nil, err
	}
	var col []float64
	if len(v.Shape) == 2 {
		col = column(v, 0)
	} else {
		col = v.Elements
	}
	out := make([]int, len(col))
	for i, x := range col {
		out[i] = int(x)
	}
	return out, nil
}

// LayersPressure reads the layer base and top pressure [hPa].
func (c *Cal2) LayersPressure(idx *Range) (base, top *sparse.DenseArray, err error) {
	top, err = c.readVar("Layer_Top_Pressure", idx)
	if err != nil {
		return nil, nil, err
	}
	base, err = c.readVar("Layer_Base_Pressure", idx)
	if err != nil {
		return nil, nil, err
	}
	return base, top, nil
}

// MidlayerTemperature reads the temperature at the middle of each
// layer [degC]. Shape [nprof, nlaymax].
func (c *Cal2) MidlayerTemperature(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Midlayer_Temperature", idx)
}

// Flag reads the feature classification flag words. Shape
// [nprof, nlaymax].
func (c *Cal2) Flag(idx *Range) (*sparse.DenseArrayInt, error) {
	v, err := c.readVar("Feature_Classification_Flags", idx)
	if v == nil || err != nil {
		return nil, err
	}
	out := sparse.ZerosDenseInt(v.Shape...)
	for i, x := range v.Elements {
		out.Elements[i] = int(x)
	}
	return out, nil
}

// maskFlag extracts a bit field from every flag word.
func (c *Cal2) maskFlag(idx *Range, mask, shift uint) (*sparse.DenseArrayInt, error) {
	f, err := c.Flag(idx)
	if f == nil || err != nil {
		return nil, err
	}
	out := sparse.ZerosDenseInt(f.Shape...)
	for i, x := range f.Elements {
		out.Elements[i] = (x & int(mask)) >> shift
	}
	return out, nil
}

// LayerType reads the layer type: bits 1-3 of the feature
// classification flag.
func (c *Cal2) LayerType(idx *Range) (*sparse.DenseArrayInt, error) {
	return c.maskFlag(idx, 7, 0)
}

// LayerTypeQA reads the layer type quality flag: bits 4-5.
func (c *Cal2) LayerTypeQA(idx *Range) (*sparse.DenseArrayInt, error) {
	return c.maskFlag(idx, 24, 3)
}

// Phase reads the layer thermodynamical phase: bits 6-7.
func (c *Cal2) Phase(idx *Range) (*sparse.DenseArrayInt, error) {
	return c.maskFlag(idx, 96, 5)
}

// PhaseQA reads the phase quality flag: bits 8-9.
func (c *Cal2) PhaseQA(idx *Range) (*sparse.DenseArrayInt, error) {
	return c.maskFlag(idx, 384, 7)
}

// LayerSubtype reads the layer subtype: bits 10-12.
func (c *Cal2) LayerSubtype(idx *Range) (*sparse.DenseArrayInt, error) {
	return c.maskFlag(idx, 3584, 9)
}

// OpacityFlag reads the opacity flag by layer.
func (c *Cal2) OpacityFlag(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Opacity_Flag", idx)
}

// HorizontalAveraging reads the horizontal averaging needed to detect
// each layer.
func (c *Cal2) HorizontalAveraging(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Horizontal_Averaging", idx)
}

// IATB532 reads the attenuated backscatter at 532 nm integrated along
// the layer thickness.
func (c *Cal2) IATB532(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Integrated_Attenuated_Backscatter_532", idx)
}

// IVDP reads the volume depolarization ratio integrated over the
// layer thickness.
func (c *Cal2) IVDP(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Integrated_Volume_Depolarization_Ratio", idx)
}

// IPDP reads the particulate depolarization ratio integrated over the
// layer thickness, the volume ratio with its molecular component
// removed.
func (c *Cal2) IPDP(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Integrated_Particulate_Depolarization_Ratio", idx)
}

// ICR reads the integrated attenuated total color ratio by layer.
func (c *Cal2) ICR(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Integrated_Attenuated_Total_Color_Ratio", idx)
}

// IPCR reads the integrated particulate color ratio by layer.
func (c *Cal2) IPCR(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Integrated_Particulate_Color_Ratio", idx)
}

// OD reads the 532 nm optical depth by layer.
func (c *Cal2) OD(idx *Range) (*sparse.DenseArray, error) {
	return c.readVar("Feature_Optical_Depth_532", idx)
}
