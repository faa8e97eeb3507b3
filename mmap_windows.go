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

//go:build windows

package gsd

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// pageSize is the alignment unit for mapped offsets: the system
// allocation granularity, which MapViewOfFile requires.
var pageSize = func() int {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	return int(info.AllocationGranularity)
}()

// mmapRegion maps [location, location+size) of f read-only using
// CreateFileMapping/MapViewOfFile, rounding the start down to the
// system allocation granularity as MapViewOfFile requires.
func mmapRegion(f *os.File, location, size uint64) (full, region []byte, err error) {
	offset := (int64(location) / int64(pageSize)) * int64(pageSize)
	pad := int64(location) - offset
	spanLen := uint64(pad) + size

	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, nil, err
	}
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, uint32(offset>>32), uint32(offset), uintptr(spanLen))
	if err != nil {
		return nil, nil, err
	}
	full = unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(spanLen))
	return full, full[pad : pad+int64(size)], nil
}

func munmapRegion(full []byte) error {
	if len(full) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&full[0]))
	return windows.UnmapViewOfFile(addr)
}
