// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command gsdcat inspects GSD container files: it prints per-file
// summaries, or reads a single named chunk out to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/mgorny/gsd"
)

var (
	dashstat  bool
	dashframe int64
	dashname  string
)

func init() {
	flag.BoolVar(&dashstat, "stat", false, "print a one-line summary per file instead of dumping a chunk")
	flag.Int64Var(&dashframe, "frame", -1, "frame to read -name from (required unless -stat)")
	flag.StringVar(&dashname, "name", "", "chunk name to read (required unless -stat)")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func main() {
	flag.Parse()
	paths := flag.Args()
	if len(paths) == 0 {
		exitf("usage: gsdcat [-stat] [-frame N -name chunk] file...\n")
	}

	if dashstat {
		if err := statAll(paths); err != nil {
			exitf("%s\n", err)
		}
		return
	}

	if len(paths) != 1 || dashframe < 0 || dashname == "" {
		exitf("usage: gsdcat -frame N -name chunk file\n")
	}
	if err := dumpChunk(paths[0], uint64(dashframe), dashname); err != nil {
		exitf("%s\n", err)
	}
}

// fileStat is one line of -stat output, computed concurrently across
// the input files by statAll.
type fileStat struct {
	path        string
	application string
	schema      string
	frames      uint64
}

// statAll opens every path read-only and prints a summary line for
// each, fanning the opens and scans out across an errgroup so a large
// batch of files does not serialize on I/O.
func statAll(paths []string) error {
	stats := make([]fileStat, len(paths))
	g, _ := errgroup.WithContext(context.Background())
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			s, err := statOne(p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			stats[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, s := range stats {
		fmt.Printf("%-40s app=%-16s schema=%-16s frames=%d\n", s.path, s.application, s.schema, s.frames)
	}
	return nil
}

func statOne(path string) (fileStat, error) {
	h, err := gsd.Open(path, gsd.ReadOnly)
	if err != nil {
		return fileStat{}, err
	}
	defer h.Close()
	return fileStat{
		path:        path,
		application: h.Application(),
		schema:      h.Schema(),
		frames:      h.NFrames(),
	}, nil
}

func dumpChunk(path string, frame uint64, name string) error {
	h, err := gsd.Open(path, gsd.ReadOnly)
	if err != nil {
		return err
	}
	defer h.Close()

	entry, ok, err := h.FindChunk(frame, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no chunk %q in frame %d", name, frame)
	}
	size := entry.N * uint64(entry.M) * uint64(gsd.SizeofType(entry.Type))
	buf := make([]byte, size)
	if err := h.ReadChunk(buf, entry); err != nil {
		return err
	}

	log.Printf("%s frame=%d name=%s type=%d shape=(%d,%d) bytes=%d", path, frame, name, entry.Type, entry.N, entry.M, size)
	_, err = os.Stdout.Write(buf)
	return err
}
