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
	"fmt"
	"io"
	"os"
)

// OpenFlag selects the access mode a Handle is opened with. The three
// modes have distinct index-residency strategies; see spec.md §4.5.
type OpenFlag int

const (
	// ReadOnly memory-maps the index region and never writes.
	ReadOnly OpenFlag = iota
	// ReadWrite reads the whole index into a heap buffer and allows
	// both WriteChunk/EndFrame and FindChunk/ReadChunk.
	ReadWrite
	// Append keeps only unwritten index entries resident and refuses
	// FindChunk/ReadChunk entirely.
	Append
)

// Handle is an open GSD file. A Handle is not safe for concurrent use
// by multiple goroutines and performs no internal locking, matching
// spec.md §5: all operations are synchronous, blocking, and totally
// ordered by call order.
type Handle struct {
	f    *os.File
	mode OpenFlag
	hdr  header

	fileSize uint64
	curFrame uint64

	// index residency: exactly one of the following is populated,
	// selected by mode (spec.md §4.5, §9).
	indexROFull []byte       // ReadOnly: backing mmap, for munmap on Close
	indexROView []byte       // ReadOnly: page-aligned view of the index region
	indexBuf    []IndexEntry // ReadWrite: the entire logical index
	indexTail   []IndexEntry // Append: entries staged since the last EndFrame

	indexNumEntries     int // logical count, spanning written + staged entries
	indexWrittenEntries int // count already written to disk

	namelist               []string // in insertion order; ids are positions
	names                  []nameIDPair
	namelistNumEntries     int
	namelistWrittenEntries int

	closed bool
}

// initializeFile truncates f and writes a fresh header, empty index,
// and empty namelist, then fsyncs. Used by both Create and Truncate.
func initializeFile(f *os.File, application, schema string, schemaVersion uint32) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	h := newHeader(application, schema, schemaVersion)
	if err := pwriteFull(f, h.encode(), 0); err != nil {
		return err
	}
	indexBlock := make([]byte, initialIndexEntries*indexEntrySize)
	if err := pwriteFull(f, indexBlock, int64(h.indexLocation)); err != nil {
		return err
	}
	namelistBlock := make([]byte, initialNamelistEntries*namelistEntrySize)
	if err := pwriteFull(f, namelistBlock, int64(h.namelistLocation)); err != nil {
		return err
	}
	return f.Sync()
}

// Create truncates (or creates) the file at path and writes a fresh
// GSD header, empty index, and empty namelist.
func Create(path, application, schema string, schemaVersion uint32) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return initializeFile(f, application, schema, schemaVersion)
}

// CreateAndOpen creates a fresh GSD file and immediately opens it with
// mode, which must be ReadWrite or Append. If exclusive is set, the
// file must not already exist.
func CreateAndOpen(path, application, schema string, schemaVersion uint32, mode OpenFlag, exclusive bool) (*Handle, error) {
	if mode == ReadOnly {
		return nil, ErrMustBeWritable
	}
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if exclusive {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	if err := initializeFile(f, application, schema, schemaVersion); err != nil {
		f.Close()
		return nil, err
	}
	h := &Handle{f: f, mode: mode}
	if err := h.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return h, nil
}

// Open opens an existing GSD file in the given mode.
func Open(path string, mode OpenFlag) (*Handle, error) {
	var flags int
	switch mode {
	case ReadOnly:
		flags = os.O_RDONLY
	case ReadWrite, Append:
		flags = os.O_RDWR
	default:
		return nil, ErrInvalidArgument
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	h := &Handle{f: f, mode: mode}
	if err := h.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return h, nil
}

// readHeader loads and validates the header, namelist, and index, and
// establishes the mode-specific index residency. It implements
// spec.md §4.4 (bootstrap) and §4.5 (open).
func (h *Handle) readHeader() error {
	buf := make([]byte, headerSize)
	n, err := preadFull(h.f, buf, 0)
	if err != nil {
		return err
	}
	if n != headerSize {
		return ErrNotAGSDFile
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		return err
	}
	h.hdr = hdr

	size, err := h.f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	h.fileSize = uint64(size)

	namelistBytes := hdr.namelistAllocatedEntries * namelistEntrySize
	if hdr.namelistLocation+namelistBytes > h.fileSize {
		return ErrFileCorrupt
	}
	nlBuf := make([]byte, namelistBytes)
	if _, err := preadFull(h.f, nlBuf, int64(hdr.namelistLocation)); err != nil {
		return err
	}

	h.namelistNumEntries = int(hdr.namelistAllocatedEntries)
	h.namelist = make([]string, 0, hdr.namelistAllocatedEntries)
	for i := uint64(0); i < hdr.namelistAllocatedEntries; i++ {
		entry := nlBuf[i*namelistEntrySize : (i+1)*namelistEntrySize]
		if entry[0] == 0 {
			h.namelistNumEntries = int(i)
			break
		}
		h.namelist = append(h.namelist, decodeNamelistEntry(entry))
	}
	h.namelistWrittenEntries = h.namelistNumEntries

	h.names = make([]nameIDPair, h.namelistNumEntries)
	for i := 0; i < h.namelistNumEntries; i++ {
		h.names[i] = nameIDPair{name: h.namelist[i], id: uint16(i)}
	}
	h.sortNames()

	indexBytes := hdr.indexAllocatedEntries * indexEntrySize

	switch h.mode {
	case ReadWrite:
		if hdr.indexLocation+indexBytes > h.fileSize {
			return ErrFileCorrupt
		}
		raw := make([]byte, indexBytes)
		if _, err := preadFull(h.f, raw, int64(hdr.indexLocation)); err != nil {
			return err
		}
		h.indexBuf = make([]IndexEntry, hdr.indexAllocatedEntries)
		for i := range h.indexBuf {
			h.indexBuf[i] = decodeIndexEntry(raw[i*indexEntrySize : (i+1)*indexEntrySize])
		}
		n, err := h.bootstrapIndex(func(i int) IndexEntry { return h.indexBuf[i] })
		if err != nil {
			return err
		}
		h.indexNumEntries = n
		h.indexWrittenEntries = n
		h.curFrame = h.frameAfter(n)

	case ReadOnly, Append:
		full, view, err := mmapRegion(h.f, hdr.indexLocation, indexBytes)
		if err != nil {
			return err
		}
		peek := func(i int) IndexEntry {
			return decodeIndexEntry(view[i*indexEntrySize : (i+1)*indexEntrySize])
		}
		n, err := h.bootstrapIndex(peek)
		if err != nil {
			munmapRegion(full)
			return err
		}
		h.indexNumEntries = n
		h.indexWrittenEntries = n
		if n == 0 {
			h.curFrame = 0
		} else {
			h.curFrame = peek(n-1).Frame + 1
		}
		if h.mode == ReadOnly {
			h.indexROFull, h.indexROView = full, view
		} else {
			if err := munmapRegion(full); err != nil {
				return err
			}
			h.indexTail = make([]IndexEntry, 0, 1)
		}

	default:
		return ErrInvalidArgument
	}

	return nil
}

func (h *Handle) frameAfter(numEntries int) uint64 {
	if numEntries == 0 {
		return 0
	}
	return h.indexBuf[numEntries-1].Frame + 1
}

// bootstrapIndex determines index_num_entries by binary-searching for
// the first entry with Location == 0, validating every probed entry
// and checking that frame is non-decreasing along the way. This is
// the dense-prefix scan from spec.md §4.4.
func (h *Handle) bootstrapIndex(peek func(int) IndexEntry) (int, error) {
	allocated := h.hdr.indexAllocatedEntries
	if allocated == 0 {
		return 0, nil
	}
	e0 := peek(0)
	if e0.Location != 0 && !validEntry(e0, h.fileSize, allocated, h.namelistNumEntries) {
		return 0, ErrFileCorrupt
	}
	if e0.Location == 0 {
		return 0, nil
	}

	L, R := uint64(0), allocated
	for R-L > 1 {
		m := (L + R) / 2
		em := peek(int(m))
		if em.Location != 0 {
			if !validEntry(em, h.fileSize, allocated, h.namelistNumEntries) || em.Frame < peek(int(L)).Frame {
				return 0, ErrFileCorrupt
			}
			L = m
		} else {
			R = m
		}
	}
	return int(R), nil
}

// getIndexEntry returns the entry at logical position i. It is only
// valid for i < h.indexNumEntries, and in Append mode only for
// i >= h.indexWrittenEntries (FindChunk/ReadChunk refuse Append
// handles entirely, so callers never need older entries there).
func (h *Handle) getIndexEntry(i int) IndexEntry {
	switch h.mode {
	case ReadOnly:
		return decodeIndexEntry(h.indexROView[i*indexEntrySize : (i+1)*indexEntrySize])
	case ReadWrite:
		return h.indexBuf[i]
	case Append:
		return h.indexTail[i-h.indexWrittenEntries]
	}
	panic("gsd: unreachable")
}

// expandIndex doubles index_allocated_entries and durably relocates
// the index, implementing the expansion protocol from spec.md §4.4:
// write the doubled block at EOF, fsync, rewrite the header, fsync.
// A crash at any point leaves either the old header pointing at the
// old (still valid) index, or the new header pointing at a fully
// materialized new index.
func (h *Handle) expandIndex() error {
	oldSize := h.hdr.indexAllocatedEntries
	newSize := oldSize * 2

	switch h.mode {
	case ReadWrite:
		newBuf := make([]IndexEntry, newSize)
		copy(newBuf, h.indexBuf)
		raw := make([]byte, newSize*indexEntrySize)
		for i := range newBuf {
			newBuf[i].encode(raw[i*indexEntrySize : (i+1)*indexEntrySize])
		}
		h.hdr.indexLocation = h.fileSize
		if err := pwriteFull(h.f, raw, int64(h.hdr.indexLocation)); err != nil {
			return err
		}
		h.fileSize = h.hdr.indexLocation + uint64(len(raw))
		h.indexBuf = newBuf

	case Append:
		oldLocation := h.hdr.indexLocation
		newLocation := h.fileSize
		oldBytes := oldSize * indexEntrySize
		newBytes := newSize * indexEntrySize

		buf := make([]byte, copyBufferSize)
		var copied uint64
		for copied < oldBytes {
			want := uint64(len(buf))
			if oldBytes-copied < want {
				want = oldBytes - copied
			}
			if _, err := preadFull(h.f, buf[:want], int64(oldLocation+copied)); err != nil {
				return err
			}
			if err := pwriteFull(h.f, buf[:want], int64(newLocation+copied)); err != nil {
				return err
			}
			copied += want
		}

		zero := make([]byte, copyBufferSize)
		for copied < newBytes {
			want := uint64(len(zero))
			if newBytes-copied < want {
				want = newBytes - copied
			}
			if err := pwriteFull(h.f, zero[:want], int64(newLocation+copied)); err != nil {
				return err
			}
			copied += want
		}

		h.hdr.indexLocation = newLocation
		h.fileSize = newLocation + newBytes

	default:
		return ErrMustBeWritable
	}

	if err := h.f.Sync(); err != nil {
		return err
	}
	h.hdr.indexAllocatedEntries = newSize
	if err := pwriteFull(h.f, h.hdr.encode(), 0); err != nil {
		return err
	}
	return h.f.Sync()
}

// WriteChunk stages a new chunk for the current frame: it resolves or
// allocates a name id, writes the payload at the current end of file,
// and appends a staged index entry in memory. No durability is
// promised until EndFrame commits the frame.
func (h *Handle) WriteChunk(name string, typ Type, n uint64, m uint32, flags uint8, data []byte) error {
	if h.closed {
		return ErrClosed
	}
	if h.mode == ReadOnly {
		return ErrMustBeWritable
	}
	if data == nil || n == 0 || m == 0 || flags != 0 {
		return ErrInvalidArgument
	}
	sz := SizeofType(typ)
	if sz == 0 {
		return ErrInvalidArgument
	}
	want := n * uint64(m) * uint64(sz)
	if uint64(len(data)) != want {
		return ErrInvalidArgument
	}

	id, ok := h.getID(name)
	if !ok {
		var err error
		id, err = h.appendName(name)
		if err != nil {
			return err
		}
	}

	entry := IndexEntry{
		Frame:    h.curFrame,
		N:        n,
		M:        m,
		ID:       id,
		Type:     typ,
		Location: h.fileSize,
	}

	if err := pwriteFull(h.f, data, int64(entry.Location)); err != nil {
		return err
	}
	h.fileSize += want

	if uint64(h.indexNumEntries) >= h.hdr.indexAllocatedEntries {
		if err := h.expandIndex(); err != nil {
			return err
		}
	}

	switch h.mode {
	case ReadWrite:
		h.indexBuf[h.indexNumEntries] = entry
	case Append:
		h.indexTail = append(h.indexTail, entry)
	}
	h.indexNumEntries++
	return nil
}

// EndFrame commits the current frame: it flushes staged index entries
// and any newly appended names to disk and advances the frame
// counter. Namelist commits are fsynced; index-entry-only commits are
// not independently fsynced (spec.md §4.6, §9).
func (h *Handle) EndFrame() error {
	if h.closed {
		return ErrClosed
	}
	if h.mode == ReadOnly {
		return ErrMustBeWritable
	}
	h.curFrame++

	entriesToWrite := h.indexNumEntries - h.indexWrittenEntries
	if entriesToWrite > 0 {
		buf := make([]byte, entriesToWrite*indexEntrySize)
		switch h.mode {
		case ReadWrite:
			for i := 0; i < entriesToWrite; i++ {
				h.indexBuf[h.indexWrittenEntries+i].encode(buf[i*indexEntrySize : (i+1)*indexEntrySize])
			}
		case Append:
			for i := 0; i < entriesToWrite; i++ {
				h.indexTail[i].encode(buf[i*indexEntrySize : (i+1)*indexEntrySize])
			}
		}
		writePos := int64(h.hdr.indexLocation) + int64(h.indexWrittenEntries)*indexEntrySize
		if err := pwriteFull(h.f, buf, writePos); err != nil {
			return err
		}
		h.indexWrittenEntries += entriesToWrite
		if h.mode == Append {
			h.indexTail = h.indexTail[:0]
		}
	}

	newNames := h.namelistNumEntries - h.namelistWrittenEntries
	if newNames > 0 {
		buf := make([]byte, newNames*namelistEntrySize)
		for i := 0; i < newNames; i++ {
			copy(buf[i*namelistEntrySize:(i+1)*namelistEntrySize], encodeNamelistEntry(h.namelist[h.namelistWrittenEntries+i]))
		}
		writePos := int64(h.hdr.namelistLocation) + int64(h.namelistWrittenEntries)*namelistEntrySize
		if err := pwriteFull(h.f, buf, writePos); err != nil {
			return err
		}
		h.namelistWrittenEntries = h.namelistNumEntries
		h.sortNames()
		if err := h.f.Sync(); err != nil {
			return err
		}
	}

	return nil
}

// NFrames returns the number of frames committed so far (the frame
// index that will be assigned to the next write).
func (h *Handle) NFrames() uint64 {
	return h.curFrame
}

// Application returns the application tag recorded in the header at
// creation time.
func (h *Handle) Application() string {
	return h.hdr.application
}

// Schema returns the schema tag recorded in the header at creation
// time.
func (h *Handle) Schema() string {
	return h.hdr.schema
}

// SchemaVersion returns the schema version recorded in the header at
// creation time.
func (h *Handle) SchemaVersion() uint32 {
	return h.hdr.schemaVersion
}

// FindChunk looks up the chunk named name written during frame. It
// returns (entry, true, nil) on success and (zero, false, nil) if no
// such chunk was written during that frame. FindChunk refuses Append
// handles, matching ReadChunk's FILE_MUST_BE_READABLE behavior.
func (h *Handle) FindChunk(frame uint64, name string) (IndexEntry, bool, error) {
	if h.closed {
		return IndexEntry{}, false, ErrClosed
	}
	if h.mode == Append {
		return IndexEntry{}, false, ErrMustBeReadable
	}
	if frame >= h.curFrame {
		return IndexEntry{}, false, nil
	}
	id, ok := h.getID(name)
	if !ok {
		return IndexEntry{}, false, nil
	}

	n := h.indexNumEntries
	if n == 0 {
		return IndexEntry{}, false, nil
	}
	L, R := 0, n
	for R-L > 1 {
		m := (L + R) / 2
		if frame < h.getIndexEntry(m).Frame {
			R = m
		} else {
			L = m
		}
	}

	for cur := L; cur >= 0; cur-- {
		e := h.getIndexEntry(cur)
		if e.Frame != frame {
			break
		}
		if e.ID == id {
			return e, true, nil
		}
	}
	return IndexEntry{}, false, nil
}

// ReadChunk reads entry's payload into dst, which must be exactly
// entry.N*entry.M*SizeofType(entry.Type) bytes long.
func (h *Handle) ReadChunk(dst []byte, entry IndexEntry) error {
	if h.closed {
		return ErrClosed
	}
	if h.mode == Append {
		return ErrMustBeReadable
	}
	size := entry.payloadSize()
	if size == 0 || entry.Location == 0 {
		return ErrFileCorrupt
	}
	if entry.Location+size > h.fileSize {
		return ErrFileCorrupt
	}
	if uint64(len(dst)) != size {
		return ErrInvalidArgument
	}
	n, err := preadFull(h.f, dst, int64(entry.Location))
	if err != nil {
		return err
	}
	if uint64(n) != size {
		return fmt.Errorf("gsd: short read of chunk payload: %w", io.ErrUnexpectedEOF)
	}
	return nil
}

// Truncate discards all frames and names, reinitializing the file
// with the same application, schema, and schema version.
func (h *Handle) Truncate() error {
	if h.closed {
		return ErrClosed
	}
	if h.mode == ReadOnly {
		return ErrMustBeWritable
	}
	if h.indexROFull != nil {
		if err := munmapRegion(h.indexROFull); err != nil {
			return err
		}
	}
	h.indexROFull, h.indexROView = nil, nil
	h.indexBuf = nil
	h.indexTail = nil
	h.namelist = nil
	h.names = nil

	app, schema, ver := h.hdr.application, h.hdr.schema, h.hdr.schemaVersion
	if err := initializeFile(h.f, app, schema, ver); err != nil {
		return err
	}
	return h.readHeader()
}

// Close releases all resources held by the handle: mmaps are
// unmapped and heap buffers freed regardless of which index-residency
// branch was active, then the file descriptor is closed. Close is not
// idempotent; calling it twice returns ErrClosed.
func (h *Handle) Close() error {
	if h.closed {
		return ErrClosed
	}
	h.closed = true

	var mmapErr error
	if h.indexROFull != nil {
		mmapErr = munmapRegion(h.indexROFull)
	}
	h.indexROFull, h.indexROView = nil, nil
	h.indexBuf = nil
	h.indexTail = nil
	h.namelist = nil
	h.names = nil

	closeErr := h.f.Close()
	if mmapErr != nil {
		return mmapErr
	}
	return closeErr
}
