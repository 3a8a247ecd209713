package elfloader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/atoll-io/atoll/internal/symfile"
)

// rela is one RELA entry decoded from the file.
type rela struct {
	Off    uint64
	Sym    uint32
	Type   uint32
	Addend int64
}

// relocate applies the .rela companion of sec to a copy of data. Only
// relocatable objects get this operation; linked images have no
// relocations left to apply.
func (l *loader) relocate(img *symfile.Image, sec *symfile.Section, data []byte) ([]byte, error) {
	f, err := l.open()
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck

	relaSec := f.Section(".rela" + sec.Name)
	if relaSec == nil {
		return data, nil
	}
	raw, err := relaSec.Data()
	if err != nil {
		return nil, fmt.Errorf("elfloader: rela data for %s: %w", sec.Name, err)
	}
	relas, err := parseRelas(raw, f.ByteOrder)
	if err != nil {
		return nil, err
	}

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("elfloader: symbols for relocation: %w", err)
	}

	out := make([]byte, len(data))
	copy(out, data)
	if err := applyRelas(out, relas, syms, f.ByteOrder); err != nil {
		return nil, err
	}
	return out, nil
}

const relaEntrySize = 24

func parseRelas(raw []byte, bo binary.ByteOrder) ([]rela, error) {
	if len(raw)%relaEntrySize != 0 {
		return nil, fmt.Errorf("elfloader: rela section size %d not a multiple of %d", len(raw), relaEntrySize)
	}
	out := make([]rela, 0, len(raw)/relaEntrySize)
	for off := 0; off < len(raw); off += relaEntrySize {
		info := bo.Uint64(raw[off+8:])
		out = append(out, rela{
			Off:    bo.Uint64(raw[off:]),
			Sym:    uint32(info >> 32),
			Type:   uint32(info),
			Addend: int64(bo.Uint64(raw[off+16:])),
		})
	}
	return out, nil
}

// applyRelas patches buf in place. Rela symbol indexes are 1-based; the
// x86-64 relocation kinds that appear in symbol and debug sections are
// handled, anything else is left untouched.
func applyRelas(buf []byte, relas []rela, syms []elf.Symbol, bo binary.ByteOrder) error {
	for _, r := range relas {
		if r.Sym == 0 || int(r.Sym) > len(syms) {
			continue
		}
		val := int64(syms[r.Sym-1].Value) + r.Addend

		switch elf.R_X86_64(r.Type) {
		case elf.R_X86_64_64:
			if r.Off+8 > uint64(len(buf)) {
				return fmt.Errorf("elfloader: relocation at %#x outside section", r.Off)
			}
			bo.PutUint64(buf[r.Off:], uint64(val))
		case elf.R_X86_64_32, elf.R_X86_64_32S:
			if r.Off+4 > uint64(len(buf)) {
				return fmt.Errorf("elfloader: relocation at %#x outside section", r.Off)
			}
			bo.PutUint32(buf[r.Off:], uint32(val))
		case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
			if r.Off+4 > uint64(len(buf)) {
				return fmt.Errorf("elfloader: relocation at %#x outside section", r.Off)
			}
			bo.PutUint32(buf[r.Off:], uint32(val-int64(r.Off)))
		}
	}
	return nil
}
