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

//go:build unix

package gsd

import (
	"os"
	"syscall"
)

// pageSize is cached at init; getpagesize() never changes at runtime.
var pageSize = os.Getpagesize()

// mmapRegion maps [location, location+size) of f read-only, rounding
// the start down to a page boundary as required by mmap(2). It
// returns the full mapped region (to be passed to munmapRegion on
// close) and the sub-slice that corresponds to exactly
// [location, location+size).
func mmapRegion(f *os.File, location, size uint64) (full, region []byte, err error) {
	offset := (int64(location) / int64(pageSize)) * int64(pageSize)
	pad := int64(location) - offset
	full, err = syscall.Mmap(int(f.Fd()), offset, int(size)+int(pad), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return full, full[pad : pad+int64(size)], nil
}

func munmapRegion(full []byte) error {
	return syscall.Munmap(full)
}
