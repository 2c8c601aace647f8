// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Program dwcsplit chunks an input file into N output files using the same
// equal-partition-with-remainder rule the driver uses internally (spec §4.3
// supplemented feature, grounded on the original chunk.c tool): it exists so
// a chunking can be inspected or replayed independently of a live driver run,
// e.g. to build --offline dumps.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/creachadair/atomicfile"
	"github.com/creachadair/ctrl"

	"github.com/go-dwc/dwc/driver"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <input-file> <nr-outputs> <output-prefix>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctrl.Run(func() error {
		if flag.NArg() != 3 {
			ctrl.Exitf(1, "usage: %s <input-file> <nr-outputs> <output-prefix>", os.Args[0])
		}
		n, err := strconv.Atoi(flag.Arg(1))
		if err != nil || n <= 0 {
			ctrl.Exitf(1, "invalid output count %q", flag.Arg(1))
		}
		return split(flag.Arg(0), n, flag.Arg(2))
	})
}

func split(input string, n int, outputPrefix string) error {
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("opening %s: %w", input, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", input, err)
	}

	ranges := driver.Split(fi.Size(), n)
	fmt.Printf("file size %d, %d chunks\n", fi.Size(), n)
	for i, r := range ranges {
		buf := make([]byte, r.Len())
		if _, err := io.ReadFull(io.NewSectionReader(f, r.Start, r.Len()), buf); err != nil {
			return fmt.Errorf("reading chunk %d: %w", i, err)
		}
		out := fmt.Sprintf("%s_%d", outputPrefix, i)
		if err := atomicfile.WriteData(out, buf, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Printf("wrote %d bytes to %s\n", r.Len(), out)
	}
	return nil
}
