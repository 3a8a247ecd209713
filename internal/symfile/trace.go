package symfile

import (
	"strings"

	"github.com/rs/zerolog"
)

// sideEntry pairs an image's own loader table with the wrapper table
// installed over it. Exactly one entry exists per image while wrappers
// are installed, keyed in the session's traced map.
type sideEntry struct {
	real   *LoaderOps
	shadow *LoaderOps
}

// opSlot describes one member of LoaderOps so install can iterate the
// table instead of naming each member by hand. Adding a member to
// LoaderOps means adding a slot here; TestSlotsCoverTable keeps the two
// in sync.
type opSlot struct {
	op      Op
	present func(*LoaderOps) bool
	shadow  func(dst, src *LoaderOps, tr *tracer)
}

var opSlots = []opSlot{
	{OpGlobalInit,
		func(o *LoaderOps) bool { return o.GlobalInit != nil },
		func(dst, src *LoaderOps, tr *tracer) { dst.GlobalInit = wrap0(tr, OpGlobalInit, src.GlobalInit) }},
	{OpInit,
		func(o *LoaderOps) bool { return o.Init != nil },
		func(dst, src *LoaderOps, tr *tracer) { dst.Init = wrap0(tr, OpInit, src.Init) }},
	{OpRead,
		func(o *LoaderOps) bool { return o.Read != nil },
		func(dst, src *LoaderOps, tr *tracer) { dst.Read = wrap1(tr, OpRead, src.Read) }},
	{OpFinish,
		func(o *LoaderOps) bool { return o.Finish != nil },
		func(dst, src *LoaderOps, tr *tracer) { dst.Finish = wrap0(tr, OpFinish, src.Finish) }},
	{OpOffsets,
		func(o *LoaderOps) bool { return o.Offsets != nil },
		func(dst, src *LoaderOps, tr *tracer) { dst.Offsets = wrap1(tr, OpOffsets, src.Offsets) }},
	{OpSegments,
		func(o *LoaderOps) bool { return o.Segments != nil },
		func(dst, src *LoaderOps, tr *tracer) { dst.Segments = wrapR(tr, OpSegments, src.Segments) }},
	{OpReadLineTable,
		func(o *LoaderOps) bool { return o.ReadLineTable != nil },
		func(dst, src *LoaderOps, tr *tracer) { dst.ReadLineTable = wrap0(tr, OpReadLineTable, src.ReadLineTable) }},
	{OpRelocate,
		func(o *LoaderOps) bool { return o.Relocate != nil },
		func(dst, src *LoaderOps, tr *tracer) { dst.Relocate = wrap2R(tr, OpRelocate, src.Relocate) }},
	{OpProbesGet,
		func(o *LoaderOps) bool { return o.Probes != nil },
		func(dst, src *LoaderOps, tr *tracer) {
			// The sub-table itself is replaced, and a nil Get inside a
			// present sub-table stays nil.
			sub := &ProbeOps{}
			if src.Probes.Get != nil {
				sub.Get = wrapR(tr, OpProbesGet, src.Probes.Get)
			}
			dst.Probes = sub
		}},
}

// buildShadow returns a wrapper table mirroring real member for member.
// Nil members of real stay nil in the shadow.
func buildShadow(real *LoaderOps, tr *tracer) *LoaderOps {
	shadow := &LoaderOps{}
	for _, slot := range opSlots {
		if slot.present(real) {
			slot.shadow(shadow, real, tr)
		}
	}
	return shadow
}

// installTrace swaps an image's loader table for a logging shadow and
// records the original in the traced map. The caller holds s.mu.
func (s *Session) installTrace(img *Image) {
	if s.traced[img] != nil {
		panic("symfile: trace wrappers already installed for " + img.name)
	}

	img.mu.Lock()
	real := img.ops
	if real == nil {
		img.mu.Unlock()
		panic("symfile: no loader table to wrap for " + img.name)
	}
	shadow := buildShadow(real, s.tr)
	img.ops = shadow
	img.mu.Unlock()

	s.traced[img] = &sideEntry{real: real, shadow: shadow}
}

// uninstallTrace restores the image's own loader table. The caller
// holds s.mu.
func (s *Session) uninstallTrace(img *Image) {
	entry := s.traced[img]
	if entry == nil {
		panic("symfile: trace wrappers not installed for " + img.name)
	}

	img.mu.Lock()
	if img.ops != entry.shadow {
		img.mu.Unlock()
		panic("symfile: active loader table is not the installed shadow for " + img.name)
	}
	img.ops = entry.real
	img.mu.Unlock()

	delete(s.traced, img)
}

// traceInstalledLocked reports whether wrappers are installed on img.
// The caller holds s.mu.
func (s *Session) traceInstalledLocked(img *Image) bool {
	return img.activeOps() != nil && s.traced[img] != nil
}

// TraceInstalled reports whether trace wrappers are currently installed
// on img.
func (s *Session) TraceInstalled(img *Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traceInstalledLocked(img)
}

// tracer emits one record per traced loader call. Its logger carries its
// own level so records flow whenever the toggle is on, independent of
// the session's configured verbosity.
type tracer struct {
	log zerolog.Logger
}

func newTracer(log zerolog.Logger) *tracer {
	return &tracer{
		log: log.With().Str("component", "symtrace").Logger().Level(zerolog.DebugLevel),
	}
}

// call records an operation entering the loader, with its arguments
// rendered the way a debugger would print them.
func (t *tracer) call(img *Image, op Op, args ...any) {
	ev := t.log.Debug().Str("image", img.name).Str("op", op.String())
	if len(args) > 0 {
		rendered := make([]string, len(args))
		for i, a := range args {
			rendered[i] = renderValue(a)
		}
		ev = ev.Str("args", strings.Join(rendered, ", "))
	}
	ev.Msg("loader call")
}

// result records the value coming back from an operation that produces
// one. Operations returning only an error get no result record, and a
// failed call leaves just its pre-call record behind.
func (t *tracer) result(img *Image, op Op, res any) {
	t.log.Debug().
		Str("image", img.name).
		Str("op", op.String()).
		Str("result", renderValue(res)).
		Msg("loader result")
}

// query records an image query answered outside the operation table.
func (t *tracer) query(img *Image, name string, res any) {
	t.log.Debug().
		Str("image", img.name).
		Str("op", name).
		Str("result", renderValue(res)).
		Msg("loader query")
}

// The wrap helpers build trace-and-forward closures over the four
// operation shapes the table uses. Each forwards to the wrapped member
// unchanged, so installing and removing wrappers is invisible to
// callers.

func wrap0(tr *tracer, op Op, fn func(*Image) error) func(*Image) error {
	return func(img *Image) error {
		tr.call(img, op)
		return fn(img)
	}
}

func wrap1[A any](tr *tracer, op Op, fn func(*Image, A) error) func(*Image, A) error {
	return func(img *Image, a A) error {
		tr.call(img, op, a)
		return fn(img, a)
	}
}

func wrapR[R any](tr *tracer, op Op, fn func(*Image) (R, error)) func(*Image) (R, error) {
	return func(img *Image) (R, error) {
		tr.call(img, op)
		r, err := fn(img)
		if err == nil {
			tr.result(img, op, r)
		}
		return r, err
	}
}

func wrap2R[A, B, R any](tr *tracer, op Op, fn func(*Image, A, B) (R, error)) func(*Image, A, B) (R, error) {
	return func(img *Image, a A, b B) (R, error) {
		tr.call(img, op, a, b)
		r, err := fn(img, a, b)
		if err == nil {
			tr.result(img, op, r)
		}
		return r, err
	}
}
