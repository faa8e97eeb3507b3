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

package gsd

import "encoding/binary"

// IndexEntry describes one committed chunk: its frame, shape, element
// type, and the byte offset of its payload. A zero Location marks an
// unused slot in the on-disk index.
//
// The wire layout (64 bytes, little-endian) is:
//
//	 0  u64 frame
//	 8  u64 N
//	16  u64 location
//	24  u32 M
//	28  u16 id
//	30  u8  type
//	31  u8  flags
//	32  u8  reserved[32]
type IndexEntry struct {
	Frame    uint64
	N        uint64
	Location uint64
	M        uint32
	ID       uint16
	Type     Type
	Flags    uint8
}

func (e *IndexEntry) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], e.Frame)
	binary.LittleEndian.PutUint64(buf[8:], e.N)
	binary.LittleEndian.PutUint64(buf[16:], e.Location)
	binary.LittleEndian.PutUint32(buf[24:], e.M)
	binary.LittleEndian.PutUint16(buf[28:], e.ID)
	buf[30] = byte(e.Type)
	buf[31] = e.Flags
	// buf[32:64] is reserved and must stay zero.
}

func decodeIndexEntry(buf []byte) IndexEntry {
	return IndexEntry{
		Frame:    binary.LittleEndian.Uint64(buf[0:]),
		N:        binary.LittleEndian.Uint64(buf[8:]),
		Location: binary.LittleEndian.Uint64(buf[16:]),
		M:        binary.LittleEndian.Uint32(buf[24:]),
		ID:       binary.LittleEndian.Uint16(buf[28:]),
		Type:     Type(buf[30]),
		Flags:    buf[31],
	}
}

// payloadSize returns N*M*sizeof(type), or 0 if the type is unknown.
func (e *IndexEntry) payloadSize() uint64 {
	sz := SizeofType(e.Type)
	if sz == 0 {
		return 0
	}
	return e.N * uint64(e.M) * uint64(sz)
}

// validEntry checks the structural invariants from spec.md §3 for a
// single index entry: known type, payload within file bounds, id
// within the namelist, frame within the allocated index, and flags
// reserved-zero.
func validEntry(e IndexEntry, fileSize, indexAllocated uint64, namelistNumEntries int) bool {
	size := e.payloadSize()
	if size == 0 {
		return false
	}
	if e.Location+size > fileSize {
		return false
	}
	if e.Frame >= indexAllocated {
		return false
	}
	if uint64(e.ID) >= uint64(namelistNumEntries) {
		return false
	}
	if e.Flags != 0 {
		return false
	}
	return true
}
