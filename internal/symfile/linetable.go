package symfile

import "sort"

// LineEntry maps an address to a source location.
type LineEntry struct {
	Addr uint64
	File string
	Line int
}

// LineTable is a sorted address-to-line mapping.
type LineTable struct {
	entries []LineEntry
}

// NewLineTable builds a table from entries. The input is copied and
// sorted by address.
func NewLineTable(entries []LineEntry) *LineTable {
	t := &LineTable{entries: make([]LineEntry, len(entries))}
	copy(t.entries, entries)
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].Addr < t.entries[j].Addr })
	return t
}

// Len returns the number of entries.
func (t *LineTable) Len() int {
	return len(t.entries)
}

// PCToLine returns the entry covering addr, nearest-below.
func (t *LineTable) PCToLine(addr uint64) (LineEntry, bool) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Addr > addr })
	if i == 0 {
		return LineEntry{}, false
	}
	return t.entries[i-1], true
}
