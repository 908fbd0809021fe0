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

// Command caliop is a command-line interface for reading and
// post-processing CALIOP lidar products.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/caliop/caliputil"
)

func main() {
	if err := caliputil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
