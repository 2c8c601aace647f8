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

// Program dwcworker is the worker half of the distributed word-count
// pipeline (spec §4.2, §6): it accepts one inbound connection carrying a
// byte-range of a file, counts words locally, and streams its table back
// out over a second connection.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/creachadair/ctrl"

	"github.com/go-dwc/dwc/variant"
	"github.com/go-dwc/dwc/worker"
)

var (
	variantName = flag.String("variant", "gc", "Protocol variant: gc or simple (must match the driver)")
	useStdin    = flag.Bool("stdin", false, "Read the chunk from stdin and write the table to stdout, instead of listening on two ports")
	prepopulate = flag.String("prepopulate", "", "Spool the inbound chunk to this file before tokenising")
	compress    = flag.Bool("compress", false, "Snappy-compress the prepopulate spool file on disk")
	debug       = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage:
  %[1]s [options] <in-port> <out-port>
  %[1]s -stdin [options]

Options:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctrl.Run(func() error {
		v, ok := variant.ByName(*variantName)
		if !ok {
			ctrl.Exitf(1, "unknown -variant %q", *variantName)
		}
		if *debug {
			log.SetFlags(log.Lmicroseconds)
		}

		if *useStdin {
			return runStdin(v)
		}
		if flag.NArg() != 2 {
			ctrl.Exitf(1, "usage: %s <in-port> <out-port>", os.Args[0])
		}
		return runPorts(v, flag.Arg(0), flag.Arg(1))
	})
}

func runStdin(v variant.Variant) error {
	e := worker.New(v)
	return e.Run(os.Stdin, os.Stdout)
}

func runPorts(v variant.Variant, inPort, outPort string) error {
	in, err := acceptOne(inPort)
	if err != nil {
		return fmt.Errorf("accepting inbound connection on port %s: %w", inPort, err)
	}
	defer in.Close()

	out, err := acceptOne(outPort)
	if err != nil {
		return fmt.Errorf("accepting outbound connection on port %s: %w", outPort, err)
	}
	defer out.Close()

	var rx io.Reader = in
	if *prepopulate != "" {
		if err := worker.Spool(in, *prepopulate, *compress); err != nil {
			return err
		}
		f, err := worker.OpenSpool(*prepopulate, *compress)
		if err != nil {
			return err
		}
		defer f.Close()
		rx = f
	}

	e := worker.New(v)
	return e.Run(rx, out)
}

// acceptOne listens on port, accepts exactly one connection, and closes the
// listener, matching the source's accept_on_ports: a worker serves exactly
// one driver for its entire lifetime.
func acceptOne(port string) (net.Conn, error) {
	l, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Accept()
}
