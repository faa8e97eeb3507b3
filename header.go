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

import (
	"encoding/binary"
	"fmt"
)

// magicID identifies a GSD file. It must appear as the first 8 bytes
// of every valid file.
const magicID uint64 = 0x65DF65DF65DF65DF

const (
	headerSize   = 256
	nameFieldLen = 64 // namelist entry size, and the application/schema field width

	initialIndexEntries    = 128
	initialNamelistEntries = 65535

	indexEntrySize    = 64
	namelistEntrySize = 64

	// copyBufferSize is the scratch buffer size used when relocating
	// the index in append mode, where the whole index is not resident
	// in memory.
	copyBufferSize = 16 * 1024
)

// header mirrors the fixed 256-byte on-disk header. Field order and
// widths are part of the wire format and must not change.
type header struct {
	magic                    uint64
	indexLocation            uint64
	namelistLocation         uint64
	indexAllocatedEntries    uint64
	namelistAllocatedEntries uint64
	schemaVersion            uint32
	gsdVersion               uint32
	application              string
	schema                   string
}

func newHeader(application, schema string, schemaVersion uint32) header {
	return header{
		magic:                    magicID,
		gsdVersion:               MakeVersion(1, 0),
		application:              truncateASCII(application, nameFieldLen-1),
		schema:                   truncateASCII(schema, nameFieldLen-1),
		schemaVersion:            schemaVersion,
		indexLocation:            headerSize,
		indexAllocatedEntries:    initialIndexEntries,
		namelistLocation:         headerSize + initialIndexEntries*indexEntrySize,
		namelistAllocatedEntries: initialNamelistEntries,
	}
}

func truncateASCII(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// encode serializes the header into exactly headerSize bytes.
func (h *header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:], h.magic)
	binary.LittleEndian.PutUint64(buf[8:], h.indexLocation)
	binary.LittleEndian.PutUint64(buf[16:], h.namelistLocation)
	binary.LittleEndian.PutUint64(buf[24:], h.indexAllocatedEntries)
	binary.LittleEndian.PutUint64(buf[32:], h.namelistAllocatedEntries)
	binary.LittleEndian.PutUint32(buf[40:], h.schemaVersion)
	binary.LittleEndian.PutUint32(buf[44:], h.gsdVersion)
	copy(buf[48:112], h.application)
	copy(buf[112:176], h.schema)
	// buf[176:256] is the reserved region; already zero.
	return buf
}

// decodeHeader validates and parses a 256-byte header buffer.
func decodeHeader(buf []byte) (header, error) {
	if len(buf) != headerSize {
		return header{}, ErrNotAGSDFile
	}
	var h header
	h.magic = binary.LittleEndian.Uint64(buf[0:])
	if h.magic != magicID {
		return header{}, ErrNotAGSDFile
	}
	h.indexLocation = binary.LittleEndian.Uint64(buf[8:])
	h.namelistLocation = binary.LittleEndian.Uint64(buf[16:])
	h.indexAllocatedEntries = binary.LittleEndian.Uint64(buf[24:])
	h.namelistAllocatedEntries = binary.LittleEndian.Uint64(buf[32:])
	h.schemaVersion = binary.LittleEndian.Uint32(buf[40:])
	h.gsdVersion = binary.LittleEndian.Uint32(buf[44:])
	h.application = cString(buf[48:112])
	h.schema = cString(buf[112:176])

	if err := validateVersion(h.gsdVersion); err != nil {
		return header{}, err
	}
	return h, nil
}

// validateVersion implements the version gate from spec.md §4.2:
// accept exactly 0.3, or anything in [1.0, 2.0).
func validateVersion(v uint32) error {
	if v == MakeVersion(0, 3) {
		return nil
	}
	if v >= MakeVersion(1, 0) && v < MakeVersion(2, 0) {
		return nil
	}
	major, minor := versionMajorMinor(v)
	return fmt.Errorf("%w: %d.%d", ErrInvalidVersion, major, minor)
}

// cString returns the NUL-terminated ASCII string stored in buf, or
// the whole buffer as a string if it is not NUL-terminated (should
// not happen for a well-formed file, but we don't want to panic on a
// corrupt one).
func cString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
