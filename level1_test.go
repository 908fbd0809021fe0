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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
)

const (
	testNShots = 100

	// Dyadic constants survive the float32 storage in the fixture
	// bit-exactly. The backscatter value sits inside the ZD bounds, so
	// the fixture must be a day orbit.
	testATB = 1. / (1 << 19)
	testMol = 1. / (1 << 15)
)

// writeTestLevel1 writes a synthetic day-orbit level-1 file with
// constant backscatter and molecular density, so every derived
// quantity has a closed-form value.
func writeTestLevel1(t *testing.T) string {
	t.Helper()
	g := DefaultGrids()
	nz, nmet := len(g.Lidar), len(g.Met)

	path := filepath.Join(t.TempDir(),
		"CAL_LID_L1-ValStage1-V3-01.2010-02-05T01-47-40ZD.hdf")

	h := cdf.NewHeader(
		[]string{"fakeDim0", "fakeDim1", "fakeDim2"},
		[]int{testNShots, nz, nmet})
	h.AddVariable("Profile_UTC_Time", []string{"fakeDim0"}, []float64{0})
	h.AddVariable("Latitude", []string{"fakeDim0"}, []float32{0})
	h.AddVariable("Longitude", []string{"fakeDim0"}, []float32{0})
	h.AddVariable("Total_Attenuated_Backscatter_532",
		[]string{"fakeDim0", "fakeDim1"}, []float32{0})
	h.AddVariable("Molecular_Number_Density",
		[]string{"fakeDim0", "fakeDim2"}, []float32{0})
	h.Define()

	w, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}

	utc := make([]float64, testNShots)
	lat := make([]float32, testNShots)
	lon := make([]float32, testNShots)
	for i := 0; i < testNShots; i++ {
		utc[i] = 100205.25
		lat[i] = float32(i)
		lon[i] = -60
	}
	atb := make([]float32, testNShots*nz)
	for i := range atb {
		atb[i] = testATB
	}
	mol := make([]float32, testNShots*nmet)
	for i := range mol {
		mol[i] = testMol
	}
	for _, v := range []struct {
		name string
		data interface{}
	}{
		{"Profile_UTC_Time", utc},
		{"Latitude", lat},
		{"Longitude", lon},
		{"Total_Attenuated_Backscatter_532", atb},
		{"Molecular_Number_Density", mol},
	} {
		end := f.Header.Lengths(v.name)
		if _, err := f.Writer(v.name, make([]int, len(end)), end).Write(v.data); err != nil {
			t.Fatalf("writing %s: %v", v.name, err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeTestLevel1RMS writes a 6-shot night-orbit file whose first
// three shots carry a high parallel RMS baseline, for exercising the
// open-time RMS screening.
func writeTestLevel1RMS(t *testing.T) string {
	t.Helper()
	const nshots = 6
	path := filepath.Join(t.TempDir(),
		"CAL_LID_L1-ValStage1-V3-01.2010-02-05T01-47-40ZN.hdf")

	h := cdf.NewHeader(
		[]string{"fakeDim0", "fakeDim1"},
		[]int{nshots, 4})
	h.AddVariable("Latitude", []string{"fakeDim0"}, []float32{0})
	h.AddVariable("Parallel_RMS_Baseline_532", []string{"fakeDim0"}, []float32{0})
	h.AddVariable("Total_Attenuated_Backscatter_532",
		[]string{"fakeDim0", "fakeDim1"}, []float32{0})
	h.Define()

	w, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}

	lat := make([]float32, nshots)
	rms := []float32{200, 200, 200, 100, 100, 100}
	atb := make([]float32, nshots*4)
	for i := 0; i < nshots; i++ {
		lat[i] = float32(i)
		for k := 0; k < 4; k++ {
			atb[i*4+k] = float32(i)
		}
	}
	for _, v := range []struct {
		name string
		data interface{}
	}{
		{"Latitude", lat},
		{"Parallel_RMS_Baseline_532", rms},
		{"Total_Attenuated_Backscatter_532", atb},
	} {
		end := f.Header.Lengths(v.name)
		if _, err := f.Writer(v.name, make([]int, len(end)), end).Write(v.data); err != nil {
			t.Fatalf("writing %s: %v", v.name, err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenLevel1MaxRMS(t *testing.T) {
	c, err := OpenLevel1MaxRMS(writeTestLevel1RMS(t), 150)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	wantMask := []bool{false, false, false, true, true, true}
	if len(c.ValidRMS) != len(wantMask) {
		t.Fatalf("mask length: got %d, want %d", len(c.ValidRMS), len(wantMask))
	}
	for i, want := range wantMask {
		if c.ValidRMS[i] != want {
			t.Errorf("shot %d: got valid=%v, want %v", i, c.ValidRMS[i], want)
		}
	}

	// The mask applies to every subsequent averaging: the all-screened
	// block flags, the clean block averages its mask-valid shots.
	lat, err := c.readVector("Latitude", 3, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(lat) != 2 {
		t.Fatalf("got %d blocks, want 2", len(lat))
	}
	if lat[0] != FlagValue {
		t.Errorf("screened block: got %g, want %g", lat[0], FlagValue)
	}
	// Shots 3 and 4 survive (the block's last shot never contributes).
	if different(lat[1], 3.5) {
		t.Errorf("clean block: got %g, want 3.5", lat[1])
	}

	atb, err := c.ATB(3, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k := 0; k < 4; k++ {
		if atb.Get(0, k) != FlagValue {
			t.Errorf("screened block col %d: got %g, want %g", k, atb.Get(0, k), FlagValue)
		}
		if different(atb.Get(1, k), 3.5) {
			t.Errorf("clean block col %d: got %g, want 3.5", k, atb.Get(1, k))
		}
	}
}

func TestOpenLevel1MaxRMSAllPass(t *testing.T) {
	c, err := OpenLevel1MaxRMS(writeTestLevel1RMS(t), 1000)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	for i, ok := range c.ValidRMS {
		if !ok {
			t.Errorf("shot %d screened out below the threshold", i)
		}
	}
	lat, err := c.readVector("Latitude", 3, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if different(lat[0], 0.5) || different(lat[1], 3.5) {
		t.Errorf("got %v, want [0.5 3.5]", lat)
	}
}

func TestOpenLevel1Metadata(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.ZCode != "ZD" {
		t.Errorf("zcode: got %q, want \"ZD\"", c.ZCode)
	}
	if want := "01-47-40ZD"; c.Orbit[len(c.Orbit)-len(want):] != want {
		t.Errorf("orbit: got %q, want suffix %q", c.Orbit, want)
	}
	want := time.Date(2010, 2, 5, 1, 47, 40, 0, time.UTC)
	if !c.Date.Equal(want) {
		t.Errorf("date: got %v, want %v", c.Date, want)
	}
}

func TestOpenLevel1BadName(t *testing.T) {
	if _, err := OpenLevel1("x.hdf"); err == nil {
		t.Error("expected an error for a name too short to hold orbit metadata")
	}
}

func TestLevel1Read(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	const navg = 5
	nblocks := testNShots / navg

	atb, err := c.ATB(navg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if atb.Shape[0] != nblocks || atb.Shape[1] != len(c.Grids.Lidar) {
		t.Fatalf("atb shape: got %v, want [%d %d]", atb.Shape, nblocks, len(c.Grids.Lidar))
	}
	for i, v := range atb.Elements {
		if different(v, testATB) {
			t.Fatalf("atb element %d: got %g, want %g", i, v, testATB)
		}
	}

	lon, lat, err := c.Coords(navg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(lon) != nblocks || len(lat) != nblocks {
		t.Fatalf("coords length: got %d/%d, want %d", len(lon), len(lat), nblocks)
	}
	// Latitude counts up by shot; block 0 averages shots 0-3.
	if different(lat[0], 1.5) {
		t.Errorf("lat[0]: got %g, want 1.5", lat[0])
	}
	if different(lon[0], -60) {
		t.Errorf("lon[0]: got %g, want -60", lon[0])
	}
}

func TestLevel1SubRange(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, lat, err := c.Coords(5, &Range{Start: 10, End: 20})
	if err != nil {
		t.Fatal(err)
	}
	if len(lat) != 2 {
		t.Fatalf("got %d blocks, want 2", len(lat))
	}
	// Shots 10-13 average to 11.5.
	if different(lat[0], 11.5) {
		t.Errorf("lat[0]: got %g, want 11.5", lat[0])
	}

	if _, _, err := c.Coords(5, &Range{Start: 0, End: testNShots + 1}); err == nil {
		t.Error("expected an error for a range beyond the orbit")
	}
	if _, err := c.UTCTime(5, &Range{Start: -1, End: 5}); err == nil {
		t.Error("expected an error for a negative range start")
	}
}

func TestLevel1Datetimes(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	dt, err := c.Datetimes(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(dt) != testNShots/10 {
		t.Fatalf("got %d timestamps, want %d", len(dt), testNShots/10)
	}
	want := time.Date(2010, 2, 5, 6, 0, 0, 0, time.UTC)
	for i, d := range dt {
		if !d.Equal(want) {
			t.Errorf("timestamp %d: got %v, want %v", i, d, want)
		}
	}
}

func TestLevel1MissingVariable(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// The synthetic file carries no pressure field; optional variables
	// read as nil with no error.
	p, err := c.Pressure(5, nil)
	if err != nil {
		t.Fatalf("missing variable should not error: %v", err)
	}
	if p != nil {
		t.Errorf("missing variable: got %v, want nil", p)
	}
}

func TestLevel1NavgLargerThanOrbit(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	atb, err := c.ATB(testNShots+1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if atb != nil {
		t.Errorf("navg beyond the orbit: got %v, want nil", atb)
	}
}

func TestLevel1Close(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close: got %v, want nil", err)
	}
	if _, err := c.ATB(5, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("read after close: got %v, want ErrClosed", err)
	}
}

func TestLevel1MolOnLidarAlt(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	mol, err := c.MolOnLidarAlt(10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if mol.Shape[1] != len(c.Grids.Lidar) {
		t.Fatalf("regridded shape: got %v, want %d levels", mol.Shape, len(c.Grids.Lidar))
	}
	// A constant field regrids to itself.
	for i, v := range mol.Elements {
		if different(v, testMol) {
			t.Fatalf("element %d: got %g, want %g", i, v, testMol)
		}
	}
}

func TestLevel1ScatteringRatio(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	const navg = 10
	cal := DefaultCalibration()

	coef, err := c.MolCalibrationCoef(navg, nil, cal)
	if err != nil {
		t.Fatal(err)
	}
	wantCoef := testATB / testMol
	for i, v := range coef {
		if different(v, wantCoef) {
			t.Fatalf("coefficient %d: got %g, want %g", i, v, wantCoef)
		}
	}

	sr, err := c.ScatteringRatio(navg, nil, cal)
	if err != nil {
		t.Fatal(err)
	}
	if sr.Shape[0] != testNShots/navg || sr.Shape[1] != len(c.Grids.Lidar) {
		t.Fatalf("sr shape: got %v, want [%d %d]", sr.Shape, testNShots/navg, len(c.Grids.Lidar))
	}
	// The backscatter equals the calibrated molecular estimate
	// everywhere, so the ratio is 1.
	for i, v := range sr.Elements {
		if different(v, 1) {
			t.Fatalf("sr element %d: got %g, want 1", i, v)
		}
	}
}

func TestLevel1ValidProfiles(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if got := c.ValidProfiles(5); got != nil {
		t.Errorf("no RMS threshold: got %v, want nil", got)
	}

	c.ValidRMS = make([]bool, testNShots)
	for i := range c.ValidRMS {
		c.ValidRMS[i] = i%2 == 0
	}
	got := c.ValidProfiles(5)
	if len(got) != testNShots/5 {
		t.Fatalf("got %d blocks, want %d", len(got), testNShots/5)
	}
	// Each block counts shots [5i, 5i+4), of which two are even;
	// 100*2/(5-1) = 50.
	for i, v := range got {
		if different(v, 50) {
			t.Errorf("block %d: got %g, want 50", i, v)
		}
	}
}

func TestLevel1ValidProfilesPerShot(t *testing.T) {
	c := &Cal1{ValidRMS: []bool{true, false, true}}
	got := c.ValidProfiles(1)
	want := []float64{100, 0, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("shot %d: got %g, want %g", i, got[i], want[i])
		}
	}
}

func TestLevel1NavgZero(t *testing.T) {
	c, err := OpenLevel1(writeTestLevel1(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	lat, err := c.readVector("Latitude", 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(lat) != 0 {
		t.Errorf("navg 0: got %d values, want 0", len(lat))
	}
}
