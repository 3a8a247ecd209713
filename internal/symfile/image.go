package symfile

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrNoLoader is returned when an image has no loader table at all.
	ErrNoLoader = errors.New("symfile: image has no loader")
	// ErrUnsupported is returned when an image's loader leaves the
	// requested operation out of its table.
	ErrUnsupported = errors.New("symfile: operation not supported by loader")
)

// Image is one symbol-bearing binary tracked by a space.
//
// The active operation table is deliberately unexported: loaders hand
// their table to SetLoaderOps and every later reassignment goes through
// it too, so the trace layer always sees table changes.
type Image struct {
	space *Space
	name  string
	path  string

	stale atomic.Bool

	mu          sync.RWMutex
	ops         *LoaderOps
	symtab      *SymTable
	lineTable   *LineTable
	sections    []Section
	loadBias    uint64
	fingerprint uint64
}

// Name returns the image's display name.
func (img *Image) Name() string { return img.name }

// Path returns the file path backing the image, if any.
func (img *Image) Path() string { return img.path }

// Space returns the space the image is registered in.
func (img *Image) Space() *Space { return img.space }

// SetLoaderOps assigns the image's loader table. It is the sole way the
// table changes: when trace wrappers are installed they are removed
// first, the new table is assigned bare, and wrappers are reinstalled
// if tracing is enabled. A nil table detaches the loader.
func (img *Image) SetLoaderOps(ops *LoaderOps) {
	s := img.space.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.traceInstalledLocked(img) {
		if !s.traceLoaderCalls {
			panic("symfile: trace wrappers installed while tracing is disabled on " + img.name)
		}
		s.uninstallTrace(img)
	}

	img.mu.Lock()
	img.ops = ops
	img.mu.Unlock()

	if s.traceLoaderCalls && ops != nil {
		s.installTrace(img)
	}
}

// activeOps snapshots the current table. In-flight calls keep running
// against the snapshot even if the table is swapped underneath them.
func (img *Image) activeOps() *LoaderOps {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.ops
}

// Supports lists the operations the image's loader provides.
func (img *Image) Supports() []Op {
	ops := img.activeOps()
	if ops == nil {
		return nil
	}
	var out []Op
	for _, slot := range opSlots {
		if slot.present(ops) {
			out = append(out, slot.op)
		}
	}
	return out
}

// Load runs the loader's read pipeline: GlobalInit for a primary image,
// then Init, then Read.
func (img *Image) Load(flags ReadFlags) error {
	ops := img.activeOps()
	if ops == nil {
		return ErrNoLoader
	}
	if flags&ReadMain != 0 && ops.GlobalInit != nil {
		if err := ops.GlobalInit(img); err != nil {
			return err
		}
	}
	if ops.Init != nil {
		if err := ops.Init(img); err != nil {
			return err
		}
	}
	if ops.Read == nil {
		return ErrUnsupported
	}
	return ops.Read(img, flags)
}

// Unload runs the loader's Finish operation. Images whose loader has no
// cleanup to do are unloaded silently.
func (img *Image) Unload() error {
	ops := img.activeOps()
	if ops == nil || ops.Finish == nil {
		return nil
	}
	return ops.Finish(img)
}

// ComputeOffsets hands caller-supplied section addresses to the loader.
func (img *Image) ComputeOffsets(addrs *SectionAddrs) error {
	ops := img.activeOps()
	if ops == nil {
		return ErrNoLoader
	}
	if ops.Offsets == nil {
		return ErrUnsupported
	}
	return ops.Offsets(img, addrs)
}

// Segments reports the image's loadable segments.
func (img *Image) Segments() (*SegmentData, error) {
	ops := img.activeOps()
	if ops == nil {
		return nil, ErrNoLoader
	}
	if ops.Segments == nil {
		return nil, ErrUnsupported
	}
	return ops.Segments(img)
}

// EnsureLineTable loads the line table if the loader can and it is not
// already present.
func (img *Image) EnsureLineTable() error {
	if img.LineTable() != nil {
		return nil
	}
	ops := img.activeOps()
	if ops == nil {
		return ErrNoLoader
	}
	if ops.ReadLineTable == nil {
		return ErrUnsupported
	}
	return ops.ReadLineTable(img)
}

// RelocateSection applies the loader's relocations to a section's raw
// bytes. Loaders that carry no Relocate operation need none, so the
// data comes back unchanged.
func (img *Image) RelocateSection(sec *Section, data []byte) ([]byte, error) {
	ops := img.activeOps()
	if ops == nil || ops.Relocate == nil {
		return data, nil
	}
	return ops.Relocate(img, sec, data)
}

// Probes returns the image's static probes. Both the sub-table and its
// Get member must be present.
func (img *Image) Probes() ([]*Probe, error) {
	ops := img.activeOps()
	if ops == nil {
		return nil, ErrNoLoader
	}
	if ops.Probes == nil || ops.Probes.Get == nil {
		return nil, ErrUnsupported
	}
	return ops.Probes.Get(img)
}

// HasSymbols reports whether the image has a non-empty symbol table.
func (img *Image) HasSymbols() bool {
	st := img.Symbols()
	ok := st != nil && st.Len() > 0
	if tr := img.tracerIfOn(); tr != nil {
		tr.query(img, "has_symbols", ok)
	}
	return ok
}

// ResolveAddr maps a runtime address to the symbol containing it,
// accounting for the image's load bias. The returned symbol's address
// is adjusted into the caller's address space.
func (img *Image) ResolveAddr(addr uint64) (Symbol, bool) {
	st := img.Symbols()
	bias := img.LoadBias()
	var (
		sym Symbol
		ok  bool
	)
	if st != nil && addr >= bias {
		sym, ok = st.Resolve(addr - bias)
	}
	if ok {
		sym.Addr += bias
	}
	if tr := img.tracerIfOn(); tr != nil {
		if ok {
			tr.query(img, "resolve_addr", sym.Name)
		} else {
			tr.query(img, "resolve_addr", nil)
		}
	}
	return sym, ok
}

// ForgetCachedSource drops cached resolution state so later queries
// re-derive it.
func (img *Image) ForgetCachedSource() {
	if st := img.Symbols(); st != nil {
		st.InvalidateCache()
	}
	if tr := img.tracerIfOn(); tr != nil {
		tr.query(img, "forget_cached_source", true)
	}
}

func (img *Image) tracerIfOn() *tracer {
	s := img.space.session
	if !s.TraceLoaderCalls() {
		return nil
	}
	return s.tr
}

// Symbols returns the image's symbol table, or nil before Read.
func (img *Image) Symbols() *SymTable {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.symtab
}

// SetSymbols stores the symbol table a loader built.
func (img *Image) SetSymbols(t *SymTable) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.symtab = t
}

// LineTable returns the image's line table, or nil before it is read.
func (img *Image) LineTable() *LineTable {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.lineTable
}

// SetLineTable stores the line table a loader built.
func (img *Image) SetLineTable(t *LineTable) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.lineTable = t
}

// Sections returns the image's section list.
func (img *Image) Sections() []Section {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.sections
}

// SetSections stores the section list a loader read.
func (img *Image) SetSections(secs []Section) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.sections = secs
}

// LoadBias returns the offset between the image's file addresses and its
// runtime addresses.
func (img *Image) LoadBias() uint64 {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.loadBias
}

// SetLoadBias records the image's runtime load bias.
func (img *Image) SetLoadBias(bias uint64) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.loadBias = bias
}

// Fingerprint returns the content hash recorded at read time.
func (img *Image) Fingerprint() uint64 {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.fingerprint
}

// SetFingerprint records the content hash of the backing file.
func (img *Image) SetFingerprint(fp uint64) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.fingerprint = fp
}

// MarkStale flags the image as out of date with its backing file.
func (img *Image) MarkStale() {
	img.stale.Store(true)
}

// ClearStale resets the staleness flag, typically after a forced
// re-read.
func (img *Image) ClearStale() {
	img.stale.Store(false)
}

// Stale reports whether the backing file changed since the image was
// read.
func (img *Image) Stale() bool {
	return img.stale.Load()
}
