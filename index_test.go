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
	"errors"
	"testing"
)

func TestIndexEntryRoundTrip(t *testing.T) {
	e := IndexEntry{Frame: 12, N: 3, Location: 4096, M: 2, ID: 7, Type: TypeFloat32, Flags: 0}
	buf := make([]byte, indexEntrySize)
	e.encode(buf)
	got := decodeIndexEntry(buf)
	if got != e {
		t.Fatalf("round trip = %+v, want %+v", got, e)
	}
}

func TestValidEntry(t *testing.T) {
	base := IndexEntry{Frame: 0, N: 2, M: 3, Location: 256, Type: TypeUint32, ID: 0}
	fileSize := base.Location + base.N*uint64(base.M)*4

	if !validEntry(base, fileSize, 128, 1) {
		t.Fatalf("expected base entry to be valid")
	}
	bad := base
	bad.Type = 0
	if validEntry(bad, fileSize, 128, 1) {
		t.Fatalf("entry with unknown type should be invalid")
	}
	bad = base
	bad.Location = fileSize // pushes payload past EOF
	if validEntry(bad, fileSize, 128, 1) {
		t.Fatalf("entry extending past EOF should be invalid")
	}
	bad = base
	bad.Frame = 128
	if validEntry(bad, fileSize, 128, 1) {
		t.Fatalf("entry with frame >= allocated should be invalid")
	}
	bad = base
	bad.ID = 5
	if validEntry(bad, fileSize, 128, 1) {
		t.Fatalf("entry with id >= namelist size should be invalid")
	}
	bad = base
	bad.Flags = 1
	if validEntry(bad, fileSize, 128, 1) {
		t.Fatalf("entry with non-zero flags should be invalid")
	}
}

func TestBootstrapIndexEmpty(t *testing.T) {
	h := &Handle{fileSize: 1 << 20, namelistNumEntries: 1}
	h.hdr.indexAllocatedEntries = 128
	entries := make([]IndexEntry, 128) // all zero: location == 0 everywhere

	n, err := h.bootstrapIndex(func(i int) IndexEntry { return entries[i] })
	if err != nil {
		t.Fatalf("bootstrapIndex: %v", err)
	}
	if n != 0 {
		t.Fatalf("bootstrapIndex on empty index = %d, want 0", n)
	}
}

func TestBootstrapIndexDensePrefix(t *testing.T) {
	h := &Handle{namelistNumEntries: 1}
	h.hdr.indexAllocatedEntries = 8
	entries := make([]IndexEntry, 8)
	for i := range entries[:5] {
		entries[i] = IndexEntry{Frame: uint64(i / 2), N: 1, M: 1, Location: uint64(100 + i*4), Type: TypeUint32}
	}
	h.fileSize = 100 + 5*4 + 1000 // comfortably past every payload

	n, err := h.bootstrapIndex(func(i int) IndexEntry { return entries[i] })
	if err != nil {
		t.Fatalf("bootstrapIndex: %v", err)
	}
	if n != 5 {
		t.Fatalf("bootstrapIndex dense prefix = %d, want 5", n)
	}
}

func TestBootstrapIndexCorruptNonMonotonicFrame(t *testing.T) {
	h := &Handle{namelistNumEntries: 1}
	h.hdr.indexAllocatedEntries = 4
	entries := []IndexEntry{
		{Frame: 3, N: 1, M: 1, Location: 100, Type: TypeUint8},
		{Frame: 1, N: 1, M: 1, Location: 101, Type: TypeUint8}, // goes backwards
		{},
		{},
	}
	h.fileSize = 1000

	_, err := h.bootstrapIndex(func(i int) IndexEntry { return entries[i] })
	if !errors.Is(err, ErrFileCorrupt) {
		t.Fatalf("bootstrapIndex with non-monotonic frame: got %v, want ErrFileCorrupt", err)
	}
}

func TestBootstrapIndexCorruptBadFirstEntry(t *testing.T) {
	h := &Handle{namelistNumEntries: 1}
	h.hdr.indexAllocatedEntries = 4
	entries := []IndexEntry{
		{Frame: 0, N: 1, M: 1, Location: 1 << 40, Type: TypeUint8}, // far past EOF
		{}, {}, {},
	}
	h.fileSize = 1000

	_, err := h.bootstrapIndex(func(i int) IndexEntry { return entries[i] })
	if !errors.Is(err, ErrFileCorrupt) {
		t.Fatalf("bootstrapIndex with corrupt first entry: got %v, want ErrFileCorrupt", err)
	}
}

func TestSizeofType(t *testing.T) {
	cases := []struct {
		typ  Type
		want int
	}{
		{TypeUint8, 1}, {TypeInt8, 1},
		{TypeUint16, 2}, {TypeInt16, 2},
		{TypeUint32, 4}, {TypeInt32, 4}, {TypeFloat32, 4},
		{TypeUint64, 8}, {TypeInt64, 8}, {TypeFloat64, 8},
		{Type(0), 0}, {Type(200), 0},
	}
	for _, c := range cases {
		if got := SizeofType(c.typ); got != c.want {
			t.Errorf("SizeofType(%d) = %d, want %d", c.typ, got, c.want)
		}
	}
}
