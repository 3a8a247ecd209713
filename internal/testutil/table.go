package testutil

import (
	"fmt"
	"sync"

	"github.com/atoll-io/atoll/internal/symfile"
)

// CallLog records loader operation invocations in order.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Note appends one invocation.
func (l *CallLog) Note(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

// Calls returns a snapshot of the recorded invocations.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// ScriptedOps returns a loader table with every operation present.
// Each operation notes itself in log and succeeds; Read installs a
// small fixed symbol table so queries have something to answer with.
func ScriptedOps(log *CallLog) *symfile.LoaderOps {
	return &symfile.LoaderOps{
		GlobalInit: func(*symfile.Image) error {
			log.Note("global_init")
			return nil
		},
		Init: func(*symfile.Image) error {
			log.Note("init")
			return nil
		},
		Read: func(img *symfile.Image, f symfile.ReadFlags) error {
			log.Note(fmt.Sprintf("read(%#x)", uint32(f)))
			img.SetSymbols(symfile.NewSymTable([]symfile.Symbol{
				{Name: "demo_main", Addr: 0x1000, Size: 0x80, Kind: 'T'},
				{Name: "demo_tick", Addr: 0x1100, Size: 0x40, Kind: 'T'},
				{Name: "demo_state", Addr: 0x2000, Size: 0x10, Kind: 'D'},
			}))
			return nil
		},
		Finish: func(img *symfile.Image) error {
			log.Note("finish")
			img.SetSymbols(nil)
			return nil
		},
		Offsets: func(*symfile.Image, *symfile.SectionAddrs) error {
			log.Note("offsets")
			return nil
		},
		Segments: func(*symfile.Image) (*symfile.SegmentData, error) {
			log.Note("segments")
			return &symfile.SegmentData{
				Segments:       []symfile.Segment{{Addr: 0x1000, Size: 0x2000}},
				SectionSegment: []int{0},
			}, nil
		},
		ReadLineTable: func(img *symfile.Image) error {
			log.Note("read_linetable")
			img.SetLineTable(symfile.NewLineTable([]symfile.LineEntry{
				{Addr: 0x1000, File: "demo.c", Line: 1},
			}))
			return nil
		},
		Relocate: func(_ *symfile.Image, _ *symfile.Section, data []byte) ([]byte, error) {
			log.Note("relocate")
			return data, nil
		},
		Probes: &symfile.ProbeOps{
			Get: func(*symfile.Image) ([]*symfile.Probe, error) {
				log.Note("probes.get")
				return []*symfile.Probe{
					{Provider: "demo", Name: "start", Addr: 0x1004},
				}, nil
			},
		},
	}
}

// SparseOps returns a loader table providing only Init and Read.
func SparseOps(log *CallLog) *symfile.LoaderOps {
	full := ScriptedOps(log)
	return &symfile.LoaderOps{
		Init: full.Init,
		Read: full.Read,
	}
}
