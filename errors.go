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

import "errors"

// Sentinel errors returned by the package. Callers should use
// errors.Is to test for these; wrapped I/O errors from the
// underlying os/syscall calls are returned as-is (or wrapped with
// %w) and are not part of this set.
var (
	// ErrNotAGSDFile is returned when a file's header is too short
	// or its magic number does not match.
	ErrNotAGSDFile = errors.New("gsd: not a gsd file")

	// ErrInvalidVersion is returned when a file's version is
	// outside the range this package accepts (0.3, or [1.0, 2.0)).
	ErrInvalidVersion = errors.New("gsd: invalid or unsupported file version")

	// ErrFileCorrupt is returned when the index or namelist fails
	// validation: an out-of-bounds payload, an unknown type, a
	// non-monotonic frame sequence, or a region extending past EOF.
	ErrFileCorrupt = errors.New("gsd: file is corrupt")

	// ErrMustBeWritable is returned by write operations on a
	// read-only handle.
	ErrMustBeWritable = errors.New("gsd: handle is not writable")

	// ErrMustBeReadable is returned by read operations on an
	// append-only handle.
	ErrMustBeReadable = errors.New("gsd: handle is not readable")

	// ErrNamelistFull is returned by WriteChunk when a new name is
	// needed and the namelist has exhausted its allocated slots.
	ErrNamelistFull = errors.New("gsd: namelist is full")

	// ErrInvalidArgument is returned for invalid call arguments: nil
	// data, zero N or M, an unknown type, non-zero flags, a buffer
	// whose length does not match N*M*SizeofType, or an unknown
	// open mode.
	ErrInvalidArgument = errors.New("gsd: invalid argument")

	// ErrClosed is returned by Close, WriteChunk, EndFrame,
	// FindChunk, ReadChunk and Truncate on a handle that has already
	// been closed. NFrames, the header accessors and
	// FindMatchingChunkName do not check for a closed handle.
	ErrClosed = errors.New("gsd: handle is closed")
)
