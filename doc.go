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

// Package gsd implements the General Simulation Data (GSD) container
// format: an append-only, framed binary file storing a sequence of
// frames, each frame a collection of named N×M arrays of primitive
// numeric types.
//
// A GSD file is produced incrementally: a writer calls WriteChunk any
// number of times and then EndFrame to commit the frame, advancing the
// frame counter. A reader opens the file and looks up arbitrary
// (frame, name) pairs with FindChunk/ReadChunk. The container makes no
// assumptions about what the named arrays mean; schema interpretation
// is left entirely to the caller.
//
// A Handle is not safe for concurrent use by multiple goroutines, and
// a file must not be written by more than one handle at a time.
package gsd
