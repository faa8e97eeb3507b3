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
	"io"
	"os"
)

// maxIOChunk caps a single positioned read or write at half of
// math.MaxInt32, matching the historical pread(2)/pwrite(2) limits on
// Windows and macOS. We apply it uniformly so behavior does not
// depend on the host platform.
const maxIOChunk = (1<<31 - 1) / 2

// preadFull reads len(buf) bytes from f at offset, looping as needed
// to satisfy large requests. It returns the number of bytes actually
// transferred; a short result with a nil error means EOF was reached
// before the buffer was filled. Any other failure is returned as an
// I/O error.
func preadFull(f *os.File, buf []byte, offset int64) (int, error) {
	total := 0
	for total < len(buf) {
		want := len(buf) - total
		if want > maxIOChunk {
			want = maxIOChunk
		}
		n, err := f.ReadAt(buf[total:total+want], offset+int64(total))
		total += n
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			// zero-byte read with no error: treat as EOF rather than
			// spinning forever.
			return total, nil
		}
	}
	return total, nil
}

// pwriteFull writes all of buf to f at offset, looping as needed for
// large buffers. Any short write without an explicit error is treated
// as an I/O error, since a writable file should never refuse bytes.
func pwriteFull(f *os.File, buf []byte, offset int64) error {
	total := 0
	for total < len(buf) {
		want := len(buf) - total
		if want > maxIOChunk {
			want = maxIOChunk
		}
		n, err := f.WriteAt(buf[total:total+want], offset+int64(total))
		total += n
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
