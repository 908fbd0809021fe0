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

// Package caliputil holds the caliop command-line interface.
package caliputil

import (
	"fmt"
	"os"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/caliop"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	Cfg = viper.New()

	// Options are the configuration options available to the caliop
	// commands.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "navg",
			usage: `
              navg is the number of consecutive profiles to average
              together horizontally.`,
			shorthand:  "n",
			defaultVal: 30,
			flagsets:   []*pflag.FlagSet{srCmd.Flags()},
		},
		{
			name: "navgh",
			usage: `
              navgh is the half-width, in averaged profiles, of the
              moving window used to smooth the molecular calibration
              coefficient.`,
			defaultVal: 50,
			flagsets:   []*pflag.FlagSet{srCmd.Flags()},
		},
		{
			name: "zmin",
			usage: `
              zmin is the bottom of the calibration reference band [km].`,
			defaultVal: 30.0,
			flagsets:   []*pflag.FlagSet{srCmd.Flags()},
		},
		{
			name: "zmax",
			usage: `
              zmax is the top of the calibration reference band [km].`,
			defaultVal: 34.0,
			flagsets:   []*pflag.FlagSet{srCmd.Flags()},
		},
		{
			name: "maxrms",
			usage: `
              maxrms is the maximum parallel RMS baseline [counts] for a
              profile to enter the averaging. Zero disables the filter.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{srCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the path the derived-product NetCDF file is
              written to.`,
			shorthand:  "o",
			defaultVal: "caliop_sr.nc",
			flagsets:   []*pflag.FlagSet{srCmd.Flags()},
		},
	}

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic(fmt.Errorf("caliputil: unsupported option type %T", option.defaultVal))
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	Root.AddCommand(infoCmd)
	Root.AddCommand(srCmd)
	Root.AddCommand(layersCmd)
}

// setConfig finds and reads in the configuration file, if there is
// one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("caliop: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main commandline interface command.
var Root = &cobra.Command{
	Use:               "caliop",
	Short:             "A tool for processing CALIOP lidar products.",
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Print orbit metadata for a CALIOP product file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := caliop.OpenLevel1(args[0])
		if err != nil {
			return err
		}
		defer c.Close()
		utc, err := c.UTCTime(1, nil)
		if err != nil {
			return err
		}
		fmt.Printf("orbit:     %s\n", c.Orbit)
		fmt.Printf("day/night: %s\n", c.ZCode)
		fmt.Printf("start:     %v\n", c.Date)
		fmt.Printf("profiles:  %d\n", len(utc))
		return nil
	},
}

var srCmd = &cobra.Command{
	Use:   "sr [file]",
	Short: "Compute the 532 nm scattering ratio for a level-1 file.",
	Long: `sr runs the full processing pipeline on a level-1 file:
horizontal averaging, vertical regridding of the molecular density,
molecular calibration, and the scattering ratio, and writes the result
to a NetCDF file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		navg := cast.ToInt(Cfg.Get("navg"))
		maxRMS := cast.ToFloat64(Cfg.Get("maxrms"))
		cal := caliop.Calibration{
			Navgh: cast.ToInt(Cfg.Get("navgh")),
			ZMin:  cast.ToFloat64(Cfg.Get("zmin")),
			ZMax:  cast.ToFloat64(Cfg.Get("zmax")),
		}

		var c *caliop.Cal1
		var err error
		if maxRMS > 0 {
			c, err = caliop.OpenLevel1MaxRMS(args[0], maxRMS)
		} else {
			c, err = caliop.OpenLevel1(args[0])
		}
		if err != nil {
			return err
		}
		defer c.Close()

		sr, err := c.ScatteringRatio(navg, nil, cal)
		if err != nil {
			return err
		}
		if sr == nil {
			return fmt.Errorf("caliop: %s holds fewer than %d profiles", args[0], navg)
		}
		lon, lat, err := c.Coords(navg, nil)
		if err != nil {
			return err
		}

		d := caliop.NewOrbitData(c.Orbit, c.ZCode, c.Date)
		d.AddVariable("ScatteringRatio", []string{"profile", "altitude"},
			"Ratio of attenuated total backscatter to calibrated molecular backscatter at 532 nm",
			"unitless", sr)
		d.AddVariable("Longitude", []string{"profile"},
			"Profile longitude", "degrees_east", vector(lon))
		d.AddVariable("Latitude", []string{"profile"},
			"Profile latitude", "degrees_north", vector(lat))
		d.AddVariable("Altitude", []string{"altitude"},
			"Lidar altitude grid", "km", vector(c.Grids.Lidar))

		out := Cfg.GetString("output")
		w, err := os.Create(out)
		if err != nil {
			return err
		}
		defer w.Close()
		if err := d.Write(w); err != nil {
			return err
		}
		fmt.Printf("wrote %d profiles to %s\n", sr.Shape[0], out)
		return nil
	},
}

var layersCmd = &cobra.Command{
	Use:   "layers [file]",
	Short: "Summarize layer detections in a level-2 file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := caliop.OpenLevel2(args[0])
		if err != nil {
			return err
		}
		defer c.Close()
		nl, _, _, err := c.Layers(nil)
		if err != nil {
			return err
		}
		typ, err := c.LayerType(nil)
		if err != nil {
			return err
		}
		var total int
		for _, n := range nl {
			total += n
		}
		fmt.Printf("orbit:    %s\n", c.Orbit)
		fmt.Printf("profiles: %d\n", len(nl))
		fmt.Printf("layers:   %d\n", total)
		if typ != nil {
			counts := make(map[int]int)
			for i, n := range nl {
				for j := 0; j < n; j++ {
					counts[typ.Get(i, j)]++
				}
			}
			for t := 0; t < 8; t++ {
				if counts[t] > 0 {
					fmt.Printf("  type %d: %d\n", t, counts[t])
				}
			}
		}
		return nil
	},
}

func vector(v []float64) *sparse.DenseArray {
	out := sparse.ZerosDense(len(v))
	copy(out.Elements, v)
	return out
}
