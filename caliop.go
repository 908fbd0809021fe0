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

// Package caliop reads CALIPSO/CALIOP level-1 and level-2 lidar
// products from NetCDF containers and post-processes them:
// horizontal profile averaging, vertical regridding of ancillary
// meteorological fields onto the lidar altitude grid, and molecular
// calibration of the attenuated backscatter to derive a scattering
// ratio.
package caliop

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// ErrClosed is returned by any read operation attempted after Close.
var ErrClosed = errors.New("caliop: file is closed")

// errNoSuchVariable marks a variable name absent from the container.
// Accessors recover it locally as a nil result: some variables are
// legitimately optional across product versions.
var errNoSuchVariable = errors.New("caliop: no such variable")

// Range selects a half-open [Start, End) sub-range on the shot axis.
type Range struct {
	Start, End int
}

// File is a handle on one CALIOP product file, holding the container
// handle and the orbit metadata parsed from the file name. Use
// OpenLevel1 or OpenLevel2 instead of opening it directly.
type File struct {
	f  *os.File
	nc *cdf.File

	// Filename is the path the file was opened from.
	Filename string
	// Orbit is the orbit identifier (chars [-15:-4] of the path).
	Orbit string
	// ZCode is the day/night code, the last two characters of the
	// orbit identifier: "ZN" for night, "ZD" for day.
	ZCode string
	// Date is the orbit start time parsed from the file name.
	Date time.Time
}

// openFile opens the container at path and parses the orbit metadata
// embedded in the file name. The metadata layout (fixed character
// offsets from the end of the path) is a contract with the data
// provider.
func openFile(path string) (*File, error) {
	orbit, date, err := parseOrbitMeta(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("caliop: opening %s: %v", path, err)
	}
	return &File{
		f:        f,
		nc:       nc,
		Filename: path,
		Orbit:    orbit,
		ZCode:    orbit[len(orbit)-2:],
		Date:     date,
	}, nil
}

// parseOrbitMeta extracts the orbit identifier and start time from a
// CALIOP file name such as
// CAL_LID_L1-ValStage1-V3-01.2010-02-05T01-47-40ZN.hdf.
func parseOrbitMeta(path string) (orbit string, date time.Time, err error) {
	n := len(path)
	if n < 25 {
		return "", time.Time{}, fmt.Errorf("caliop: file name %q too short to hold orbit metadata", path)
	}
	orbit = path[n-15 : n-4]
	fields := []struct {
		name     string
		from, to int
	}{
		{"year", 25, 21},
		{"month", 20, 18},
		{"day", 17, 15},
		{"hour", 14, 12},
		{"minute", 11, 9},
		{"second", 8, 6},
	}
	v := make([]int, len(fields))
	for i, fl := range fields {
		v[i], err = strconv.Atoi(path[n-fl.from : n-fl.to])
		if err != nil {
			return "", time.Time{}, fmt.Errorf("caliop: parsing %s from file name %q: %v", fl.name, path, err)
		}
	}
	date = time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], 0, time.UTC)
	return orbit, date, nil
}

func (c *File) String() string { return c.Filename }

// Close releases the container handle. Closing an already-closed file
// is a no-op.
func (c *File) Close() error {
	if c.nc == nil {
		return nil
	}
	c.nc = nil
	err := c.f.Close()
	c.f = nil
	if err != nil {
		return fmt.Errorf("caliop: closing %s: %v", c.Filename, err)
	}
	return nil
}

// readSDS reads the named variable in full and squeezes out length-1
// dimensions. A missing variable returns errNoSuchVariable.
func (c *File) readSDS(name string) (*sparse.DenseArray, error) {
	if c.nc == nil {
		return nil, ErrClosed
	}
	dims := c.nc.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: %s", errNoSuchVariable, name)
	}
	nread := 1
	for _, d := range dims {
		nread *= d
	}
	r := c.nc.Reader(name, nil, nil)
	buf := r.Zero(nread)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("caliop: reading variable %s: %v", name, err)
	}
	data := sparse.ZerosDense(squeeze(dims)...)
	switch b := buf.(type) {
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []float64:
		copy(data.Elements, b)
	case []int32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int8:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("caliop: variable %s has unsupported type %T", name, buf)
	}
	return data, nil
}

// recoverMissingVar converts a no-such-variable error into a nil
// result, logging it the way optional variables have always been
// handled.
func recoverMissingVar(data *sparse.DenseArray, err error) (*sparse.DenseArray, error) {
	if errors.Is(err, errNoSuchVariable) {
		log.Printf("caliop: cannot read %v", err)
		return nil, nil
	}
	return data, err
}

// squeeze drops length-1 dimensions, so a [nprof, 1] variable reads as
// a vector. A fully scalar variable keeps one dimension.
func squeeze(dims []int) []int {
	out := make([]int, 0, len(dims))
	for _, d := range dims {
		if d != 1 {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		out = []int{1}
	}
	return out
}

// checkRange validates a shot sub-range against the shot count.
func checkRange(idx *Range, nshots int) error {
	if idx.Start < 0 || idx.End < idx.Start || idx.End > nshots {
		return fmt.Errorf("caliop: shot range [%d, %d) outside the %d available shots",
			idx.Start, idx.End, nshots)
	}
	return nil
}

// subsetRows returns rows [idx.Start, idx.End) of a 1-D or 2-D array.
func subsetRows(a *sparse.DenseArray, idx *Range) (*sparse.DenseArray, error) {
	if idx == nil {
		return a, nil
	}
	if err := checkRange(idx, a.Shape[0]); err != nil {
		return nil, err
	}
	switch len(a.Shape) {
	case 1:
		out := sparse.ZerosDense(idx.End - idx.Start)
		copy(out.Elements, a.Elements[idx.Start:idx.End])
		return out, nil
	case 2:
		ncol := a.Shape[1]
		out := sparse.ZerosDense(idx.End-idx.Start, ncol)
		copy(out.Elements, a.Elements[idx.Start*ncol:idx.End*ncol])
		return out, nil
	default:
		return nil, fmt.Errorf("caliop: cannot subset %d-d array by shot range", len(a.Shape))
	}
}
