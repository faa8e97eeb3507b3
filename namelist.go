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

import "sort"

// nameIDPair is one entry in the in-memory name lookup cache: a name
// and the small-integer id assigned to it at insertion time. The
// cache is kept sorted by name (within the committed prefix) so that
// lookups can binary search it; ids are never reassigned by sorting.
type nameIDPair struct {
	name string
	id   uint16
}

func encodeNamelistEntry(name string) []byte {
	buf := make([]byte, namelistEntrySize)
	copy(buf, truncateASCII(name, namelistEntrySize-1))
	return buf
}

func decodeNamelistEntry(buf []byte) string {
	return cString(buf)
}

// appendName adds name to the namelist, truncated to the maximum
// field width, and assigns it the next sequential id. It fails with
// ErrNamelistFull once the namelist's allocated capacity (fixed at
// open time; see spec.md §9 on the namelist's effective 65535-entry
// ceiling) is exhausted.
func (h *Handle) appendName(name string) (uint16, error) {
	if h.mode == ReadOnly {
		return 0, ErrMustBeWritable
	}
	if uint64(h.namelistNumEntries) == h.hdr.namelistAllocatedEntries {
		return 0, ErrNamelistFull
	}
	trimmed := truncateASCII(name, namelistEntrySize-1)
	id := uint16(h.namelistNumEntries)
	h.namelist = append(h.namelist, trimmed)
	h.names = append(h.names, nameIDPair{name: trimmed, id: id})
	h.namelistNumEntries++
	return id, nil
}

// sortNames re-sorts the entire name cache by name. Called after
// loading the namelist at open and after each EndFrame commits new
// names, per spec.md §9's "sorted name cache with deferred resort".
func (h *Handle) sortNames() {
	s := h.names[:h.namelistNumEntries]
	sort.Slice(s, func(i, j int) bool { return s[i].name < s[j].name })
}

// findNamePos performs the prefix-compare binary search described in
// spec.md §4.3 and §9: only the first len(name) bytes of each
// candidate are compared, and only the sorted prefix committed by the
// last EndFrame (h.namelistWrittenEntries entries) is searched. This
// means a short needle can match a longer name that merely shares its
// prefix — a known, preserved subtlety of the original implementation.
func (h *Handle) findNamePos(name string) (int, bool) {
	n := h.namelistWrittenEntries
	if n == 0 {
		return 0, false
	}
	L, R := 0, n
	cmp := prefixCompare(name, h.names[L].name)
	if cmp < 0 {
		return 0, false
	}
	if cmp == 0 {
		return L, true
	}
	for R-L > 1 {
		m := (L + R) / 2
		cmp = prefixCompare(name, h.names[m].name)
		if cmp < 0 {
			R = m
		} else if cmp == 0 {
			return m, true
		} else {
			L = m
		}
	}
	return 0, false
}

// prefixCompare compares needle against the first len(needle) bytes
// of candidate, treating candidate as implicitly NUL-padded past its
// own length (mirroring C's strncmp against a NUL-terminated buffer).
func prefixCompare(needle, candidate string) int {
	for i := 0; i < len(needle); i++ {
		var cb byte
		if i < len(candidate) {
			cb = candidate[i]
		}
		nb := needle[i]
		if nb < cb {
			return -1
		}
		if nb > cb {
			return 1
		}
	}
	return 0
}

// getID resolves name to its assigned id, searching only the
// committed prefix of the name cache. It never inserts.
func (h *Handle) getID(name string) (uint16, bool) {
	pos, ok := h.findNamePos(name)
	if !ok {
		return 0, false
	}
	return h.names[pos].id, true
}

// FindMatchingChunkName enumerates committed names with the given
// prefix. Passing an empty prev starts the scan from the beginning;
// passing the name returned by a previous call resumes just after it.
// It returns ("", false) once the scan reaches the end of the
// committed namelist, or if prev is not itself a committed name.
func (h *Handle) FindMatchingChunkName(match, prev string) (string, bool) {
	if h.namelistWrittenEntries == 0 {
		return "", false
	}
	start := 0
	if prev != "" {
		pos, ok := h.findNamePos(prev)
		if !ok {
			return "", false
		}
		start = pos + 1
	}
	for i := start; i < h.namelistWrittenEntries; i++ {
		if len(h.names[i].name) >= len(match) && h.names[i].name[:len(match)] == match {
			return h.names[i].name, true
		}
	}
	return "", false
}
