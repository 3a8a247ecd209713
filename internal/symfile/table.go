package symfile

import "fmt"

// ReadFlags adjust how a loader's Read operation behaves.
type ReadFlags uint32

const (
	// ReadMain marks the image as the primary executable of its space.
	ReadMain ReadFlags = 1 << iota
	// ReadVerbose asks the loader to report progress detail.
	ReadVerbose
	// ReadForce re-reads symbols even when the image already has them.
	ReadForce
)

// LoaderOps is the operation table a loader installs on an image.
//
// Every member is optional. A nil member means the loader does not
// support that operation, and the gap survives verbatim through every
// layer that handles the table, so callers can probe support by
// checking for nil. Loaders typically share one table value across all
// images they serve.
type LoaderOps struct {
	// GlobalInit resets loader-global state before a primary image is
	// read.
	GlobalInit func(*Image) error
	// Init prepares per-image state before reading.
	Init func(*Image) error
	// Read loads the image's symbols.
	Read func(*Image, ReadFlags) error
	// Finish releases whatever Read built.
	Finish func(*Image) error
	// Offsets applies caller-supplied section addresses.
	Offsets func(*Image, *SectionAddrs) error
	// Segments reports the loadable segments of the image.
	Segments func(*Image) (*SegmentData, error)
	// ReadLineTable loads the address-to-line mapping.
	ReadLineTable func(*Image) error
	// Relocate applies relocations to a section's raw bytes and returns
	// the relocated copy.
	Relocate func(*Image, *Section, []byte) ([]byte, error)
	// Probes points to the probe sub-table, for images carrying static
	// instrumentation points. The indirection is part of the table
	// shape: a loader without probe support leaves it nil.
	Probes *ProbeOps
}

// ProbeOps is the nested probe operation table.
type ProbeOps struct {
	// Get returns the image's static probes.
	Get func(*Image) ([]*Probe, error)
}

// Op identifies one operation table member.
type Op int

const (
	OpGlobalInit Op = iota
	OpInit
	OpRead
	OpFinish
	OpOffsets
	OpSegments
	OpReadLineTable
	OpRelocate
	OpProbesGet
)

func (op Op) String() string {
	switch op {
	case OpGlobalInit:
		return "global_init"
	case OpInit:
		return "init"
	case OpRead:
		return "read"
	case OpFinish:
		return "finish"
	case OpOffsets:
		return "offsets"
	case OpSegments:
		return "segments"
	case OpReadLineTable:
		return "read_linetable"
	case OpRelocate:
		return "relocate"
	case OpProbesGet:
		return "probes.get"
	}
	return fmt.Sprintf("op(%d)", int(op))
}
