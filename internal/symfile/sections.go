package symfile

// Section describes one section of an image.
type Section struct {
	Name   string
	Addr   uint64
	Size   uint64
	Offset uint64 // file offset
	Index  int
}

// SectionAddr is a caller-supplied address for a named section.
type SectionAddr struct {
	Name  string
	Addr  uint64
	Index int
}

// SectionAddrs carries address overrides into a loader's Offsets
// operation, for images mapped somewhere other than their link address.
type SectionAddrs struct {
	Entries []SectionAddr
}

// Segment is one loadable region of an image.
type Segment struct {
	Addr uint64
	Size uint64
}

// SegmentData describes how an image's sections map onto its loadable
// segments.
type SegmentData struct {
	Segments []Segment
	// SectionSegment maps a section index to the segment containing it,
	// or -1 when the section is not part of any segment.
	SectionSegment []int
}
