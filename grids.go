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
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

//go:embed staticdata/lidaralt.asc staticdata/metalt.asc
var staticData embed.FS

// Grids holds the two fixed vertical coordinate tables, both
// decreasing with index: the native lidar altitude grid of the
// backscatter arrays and the coarser grid of the ancillary
// meteorological fields. Values are in km.
type Grids struct {
	Lidar []float64
	Met   []float64
}

var (
	defaultGrids     *Grids
	defaultGridsOnce sync.Once
)

// DefaultGrids returns the grids shipped with the package, parsed
// once per process. The returned struct is shared; treat it as
// immutable.
func DefaultGrids() *Grids {
	defaultGridsOnce.Do(func() {
		lidar, err := loadEmbedded("staticdata/lidaralt.asc")
		if err != nil {
			panic(err)
		}
		met, err := loadEmbedded("staticdata/metalt.asc")
		if err != nil {
			panic(err)
		}
		defaultGrids = &Grids{Lidar: lidar, Met: met}
	})
	return defaultGrids
}

func loadEmbedded(name string) ([]float64, error) {
	b, err := staticData.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("caliop: reading embedded grid %s: %v", name, err)
	}
	v, err := LoadAltitudes(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("caliop: parsing embedded grid %s: %v", name, err)
	}
	return v, nil
}

// LoadAltitudes parses a whitespace-separated altitude table, one or
// more values per line.
func LoadAltitudes(r io.Reader) ([]float64, error) {
	var out []float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		for _, field := range strings.Fields(scanner.Text()) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("caliop: parsing altitude %q: %v", field, err)
			}
			out = append(out, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
