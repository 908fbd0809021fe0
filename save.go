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
	"os"
	"sort"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// OrbitData collects derived per-orbit products for output to a
// NetCDF file.
type OrbitData struct {
	// Orbit and ZCode identify the source orbit; Date is its start
	// time. All three are stamped as global attributes.
	Orbit string
	ZCode string
	Date  time.Time

	data map[string]orbitVariable
}

type orbitVariable struct {
	dims        []string
	description string
	units       string
	data        *sparse.DenseArray
}

// NewOrbitData creates an empty product container for one orbit.
func NewOrbitData(orbit, zcode string, date time.Time) *OrbitData {
	return &OrbitData{
		Orbit: orbit,
		ZCode: zcode,
		Date:  date,
		data:  make(map[string]orbitVariable),
	}
}

// AddVariable adds a product field. dims names one dimension per axis
// of data; dimensions shared between variables must agree in length.
func (d *OrbitData) AddVariable(name string, dims []string, description, units string, data *sparse.DenseArray) {
	if len(dims) != len(data.Shape) {
		panic(fmt.Errorf("caliop: variable %s has %d dimension names for a %d-d array", name, len(dims), len(data.Shape)))
	}
	d.data[name] = orbitVariable{
		dims:        dims,
		description: description,
		units:       units,
		data:        data,
	}
}

// Write writes the products to NetCDF file w.
func (d *OrbitData) Write(w *os.File) error {
	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(d.data))
	for n := range d.data {
		names = append(names, n)
	}
	sort.Strings(names)

	var dims []string
	var lengths []int
	seen := make(map[string]int)
	for _, name := range names {
		v := d.data[name]
		for i, dim := range v.dims {
			l := v.data.Shape[i]
			if prev, ok := seen[dim]; ok {
				if prev != l {
					return fmt.Errorf("caliop: dimension %s has conflicting lengths %d and %d", dim, prev, l)
				}
				continue
			}
			seen[dim] = l
			dims = append(dims, dim)
			lengths = append(lengths, l)
		}
	}

	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "comment", "CALIOP derived products")
	h.AddAttribute("", "orbit", d.Orbit)
	h.AddAttribute("", "daynight", d.ZCode)
	h.AddAttribute("", "date", d.Date.Format(time.RFC3339))
	for _, name := range names {
		v := d.data[name]
		h.AddVariable(name, v.dims, []float32{0})
		h.AddAttribute(name, "description", v.description)
		h.AddAttribute(name, "units", v.units)
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := writeNCF(f, name, d.data[name].data); err != nil {
			return fmt.Errorf("caliop: writing variable %s to netcdf file: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, name string, data *sparse.DenseArray) error {
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data32)
	return err
}
