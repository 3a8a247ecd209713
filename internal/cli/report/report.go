// Package report assembles display rows and symbol renderings for the
// CLI commands and the interactive shell.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atoll-io/atoll/internal/symfile"
)

// ImageRow is one loaded image in tabular output.
type ImageRow struct {
	Name       string `header:"IMAGE" json:"image"`
	Symbols    int    `header:"SYMBOLS" json:"symbols"`
	Sections   int    `header:"SECTIONS" json:"sections"`
	Bias       string `header:"BIAS" json:"load_bias"`
	State      string `header:"STATE" json:"state"`
	Operations string `header:"OPERATIONS" json:"operations"`
	Path       string `header:"PATH" json:"path"`
}

// ProbeRow is one static probe in tabular output.
type ProbeRow struct {
	Image    string `header:"IMAGE" json:"image"`
	Provider string `header:"PROVIDER" json:"provider"`
	Name     string `header:"NAME" json:"name"`
	Address  string `header:"ADDRESS" json:"address"`
	Args     string `header:"ARGUMENTS" json:"arguments"`
}

// SegmentRow is one loadable segment in tabular output.
type SegmentRow struct {
	Image    string `header:"IMAGE" json:"image"`
	Segment  int    `header:"SEGMENT" json:"segment"`
	Address  string `header:"ADDRESS" json:"address"`
	Size     string `header:"SIZE" json:"size"`
	Sections int    `header:"SECTIONS" json:"sections"`
}

// BuildImageRows summarizes imgs for display.
func BuildImageRows(imgs []*symfile.Image) []ImageRow {
	rows := make([]ImageRow, 0, len(imgs))
	for _, img := range imgs {
		ops := img.Supports()
		names := make([]string, len(ops))
		for i, op := range ops {
			names[i] = op.String()
		}

		symbols := 0
		if t := img.Symbols(); t != nil {
			symbols = t.Len()
		}

		state := "loaded"
		if img.Stale() {
			state = "stale"
		}

		rows = append(rows, ImageRow{
			Name:       img.Name(),
			Symbols:    symbols,
			Sections:   len(img.Sections()),
			Bias:       fmt.Sprintf("%#x", img.LoadBias()),
			State:      state,
			Operations: strings.Join(names, ","),
			Path:       img.Path(),
		})
	}
	return rows
}

// BuildProbeRows collects the static probes of imgs. Images whose
// loader has no probe support are skipped.
func BuildProbeRows(imgs []*symfile.Image) ([]ProbeRow, error) {
	var rows []ProbeRow
	for _, img := range imgs {
		probes, err := img.Probes()
		if err != nil {
			if errors.Is(err, symfile.ErrUnsupported) || errors.Is(err, symfile.ErrNoLoader) {
				continue
			}
			return nil, fmt.Errorf("probes for %s: %w", img.Name(), err)
		}
		for _, p := range probes {
			rows = append(rows, ProbeRow{
				Image:    img.Name(),
				Provider: p.Provider,
				Name:     p.Name,
				Address:  fmt.Sprintf("%#x", p.Addr),
				Args:     p.Args,
			})
		}
	}
	return rows, nil
}

// BuildSegmentRows collects the loadable segments of imgs together with
// how many sections each one carries. Images whose loader has no
// segment support are skipped.
func BuildSegmentRows(imgs []*symfile.Image) ([]SegmentRow, error) {
	var rows []SegmentRow
	for _, img := range imgs {
		data, err := img.Segments()
		if err != nil {
			if errors.Is(err, symfile.ErrUnsupported) || errors.Is(err, symfile.ErrNoLoader) {
				continue
			}
			return nil, fmt.Errorf("segments for %s: %w", img.Name(), err)
		}
		counts := make([]int, len(data.Segments))
		for _, seg := range data.SectionSegment {
			if seg >= 0 && seg < len(counts) {
				counts[seg]++
			}
		}
		for i, seg := range data.Segments {
			rows = append(rows, SegmentRow{
				Image:    img.Name(),
				Segment:  i,
				Address:  fmt.Sprintf("%#x", seg.Addr),
				Size:     fmt.Sprintf("%#x", seg.Size),
				Sections: counts[i],
			})
		}
	}
	return rows, nil
}

// FormatSymbol renders a resolved symbol as name+0x10 [image].
func FormatSymbol(img *symfile.Image, sym symfile.Symbol, addr uint64) string {
	if addr > sym.Addr {
		return fmt.Sprintf("%s+%#x [%s]", sym.Name, addr-sym.Addr, img.Name())
	}
	return fmt.Sprintf("%s [%s]", sym.Name, img.Name())
}

// ResolveAddr searches imgs for the symbol covering addr and renders
// the first hit.
func ResolveAddr(imgs []*symfile.Image, addr uint64) (string, bool) {
	for _, img := range imgs {
		if sym, ok := img.ResolveAddr(addr); ok {
			return FormatSymbol(img, sym, addr), true
		}
	}
	return "", false
}

// LookupSymbol searches imgs for a symbol by exact name. The rendered
// address includes the owning image's load bias.
func LookupSymbol(imgs []*symfile.Image, name string) (string, bool) {
	for _, img := range imgs {
		t := img.Symbols()
		if t == nil {
			continue
		}
		if sym, ok := t.Lookup(name); ok {
			return fmt.Sprintf("%#x %s [%s]", sym.Addr+img.LoadBias(), sym.Name, img.Name()), true
		}
	}
	return "", false
}
