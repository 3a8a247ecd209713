// Package elfloader reads symbols from ELF images through a loader
// table shaped by what each file actually carries.
package elfloader

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/atoll-io/atoll/internal/symfile"
)

// loader serves one ELF file. Files are opened per operation; whatever
// an operation produces lands on the image, not here.
type loader struct {
	path string
	typ  elf.Type
}

// OpsForFile inspects the ELF at path and returns a table with exactly
// the operations the file supports: Relocate only for relocatable
// objects, ReadLineTable only when DWARF line info exists, Probes only
// when an SDT note section is present.
func OpsForFile(path string) (*symfile.LoaderOps, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfloader: open %s: %w", path, err)
	}
	defer f.Close() // nolint:errcheck

	l := &loader{path: path, typ: f.Type}
	ops := &symfile.LoaderOps{
		Init:     l.init,
		Read:     l.read,
		Finish:   l.finish,
		Offsets:  l.offsets,
		Segments: l.segments,
	}
	if f.Section(".debug_line") != nil {
		ops.ReadLineTable = l.readLineTable
	}
	if f.Type == elf.ET_REL {
		ops.Relocate = l.relocate
	}
	if f.Section(sdtNoteSection) != nil {
		ops.Probes = &symfile.ProbeOps{Get: l.probes}
	}
	return ops, nil
}

// RuntimeOffsets builds the section address table for a file mapped at
// base. Position dependent executables keep their link-time addresses,
// so nil is returned for them and no offsets need applying.
func RuntimeOffsets(path string, base uint64) (*symfile.SectionAddrs, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfloader: open %s: %w", path, err)
	}
	defer f.Close() // nolint:errcheck

	if f.Type != elf.ET_DYN {
		return nil, nil
	}

	addrs := &symfile.SectionAddrs{}
	for i, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		addrs.Entries = append(addrs.Entries, symfile.SectionAddr{
			Name:  s.Name,
			Addr:  base + s.Addr,
			Index: i,
		})
	}
	if len(addrs.Entries) == 0 {
		return nil, nil
	}
	return addrs, nil
}

func (l *loader) open() (*elf.File, error) {
	f, err := elf.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("elfloader: open %s: %w", l.path, err)
	}
	return f, nil
}

func (l *loader) init(img *symfile.Image) error {
	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close() // nolint:errcheck

	secs := make([]symfile.Section, 0, len(f.Sections))
	for i, s := range f.Sections {
		secs = append(secs, symfile.Section{
			Name:   s.Name,
			Addr:   s.Addr,
			Size:   s.Size,
			Offset: s.Offset,
			Index:  i,
		})
	}
	img.SetSections(secs)

	fp, err := symfile.FingerprintFile(l.path)
	if err != nil {
		return err
	}
	img.SetFingerprint(fp)
	return nil
}

func (l *loader) read(img *symfile.Image, flags symfile.ReadFlags) error {
	if img.Symbols() != nil && flags&symfile.ReadForce == 0 {
		return nil
	}

	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close() // nolint:errcheck

	var syms []symfile.Symbol
	take := func(in []elf.Symbol) {
		for _, es := range in {
			if es.Name == "" || es.Section == elf.SHN_UNDEF {
				continue
			}
			syms = append(syms, symfile.Symbol{
				Name: es.Name,
				Addr: es.Value,
				Size: es.Size,
				Kind: symbolKind(es),
			})
		}
	}

	static, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return fmt.Errorf("elfloader: symbols %s: %w", l.path, err)
	}
	take(static)

	dynamic, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return fmt.Errorf("elfloader: dynamic symbols %s: %w", l.path, err)
	}
	take(dynamic)

	if len(syms) == 0 {
		return fmt.Errorf("elfloader: %s carries no symbols", l.path)
	}
	img.SetSymbols(symfile.NewSymTable(syms))
	img.ClearStale()
	return nil
}

func (l *loader) finish(img *symfile.Image) error {
	img.SetSymbols(nil)
	img.SetLineTable(nil)
	img.SetSections(nil)
	return nil
}

// offsets derives the image load bias from the first supplied section
// address that matches a section in the file.
func (l *loader) offsets(img *symfile.Image, addrs *symfile.SectionAddrs) error {
	if addrs == nil || len(addrs.Entries) == 0 {
		return nil
	}

	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close() // nolint:errcheck

	for _, sa := range addrs.Entries {
		sec := f.Section(sa.Name)
		if sec == nil || sa.Addr < sec.Addr {
			continue
		}
		img.SetLoadBias(sa.Addr - sec.Addr)
		return nil
	}
	return fmt.Errorf("elfloader: no usable section address for %s", l.path)
}

func (l *loader) segments(img *symfile.Image) (*symfile.SegmentData, error) {
	f, err := l.open()
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck

	var segs []symfile.Segment
	var loads []*elf.Prog
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			loads = append(loads, p)
			segs = append(segs, symfile.Segment{Addr: p.Vaddr, Size: p.Memsz})
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("elfloader: %s has no loadable segments", l.path)
	}

	mapping := make([]int, len(f.Sections))
	for i, s := range f.Sections {
		mapping[i] = -1
		if s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		for j, p := range loads {
			if s.Addr >= p.Vaddr && s.Addr+s.Size <= p.Vaddr+p.Memsz {
				mapping[i] = j
				break
			}
		}
	}
	return &symfile.SegmentData{Segments: segs, SectionSegment: mapping}, nil
}

func (l *loader) readLineTable(img *symfile.Image) error {
	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close() // nolint:errcheck

	d, err := f.DWARF()
	if err != nil {
		return fmt.Errorf("elfloader: dwarf %s: %w", l.path, err)
	}

	var entries []symfile.LineEntry
	r := d.Reader()
	for {
		ent, err := r.Next()
		if err != nil {
			return fmt.Errorf("elfloader: dwarf entries %s: %w", l.path, err)
		}
		if ent == nil {
			break
		}
		if ent.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		lr, err := d.LineReader(ent)
		if err != nil {
			return fmt.Errorf("elfloader: line reader %s: %w", l.path, err)
		}
		if lr == nil {
			continue
		}
		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return fmt.Errorf("elfloader: line entries %s: %w", l.path, err)
			}
			if le.EndSequence || le.File == nil {
				continue
			}
			entries = append(entries, symfile.LineEntry{
				Addr: le.Address,
				File: le.File.Name,
				Line: le.Line,
			})
		}
	}
	img.SetLineTable(symfile.NewLineTable(entries))
	return nil
}

func symbolKind(es elf.Symbol) byte {
	switch elf.ST_TYPE(es.Info) {
	case elf.STT_FUNC:
		return 'T'
	case elf.STT_OBJECT:
		return 'D'
	}
	return '?'
}
