package elfloader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/atoll-io/atoll/internal/symfile"
)

const (
	sdtNoteSection = ".note.stapsdt"
	sdtNoteName    = "stapsdt"
	sdtNoteType    = 3
)

func (l *loader) probes(img *symfile.Image) ([]*symfile.Probe, error) {
	f, err := l.open()
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck

	sec := f.Section(sdtNoteSection)
	if sec == nil {
		return nil, nil
	}
	raw, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("elfloader: sdt notes: %w", err)
	}
	return parseSDTNotes(raw, f.ByteOrder)
}

// parseSDTNotes decodes a .note.stapsdt section: a sequence of ELF
// notes whose descriptor holds the probe, base and semaphore addresses
// followed by the provider, name and argument strings.
func parseSDTNotes(raw []byte, bo binary.ByteOrder) ([]*symfile.Probe, error) {
	var probes []*symfile.Probe
	off := 0
	for off+12 <= len(raw) {
		namesz := int(bo.Uint32(raw[off:]))
		descsz := int(bo.Uint32(raw[off+4:]))
		typ := bo.Uint32(raw[off+8:])
		off += 12

		nameEnd := off + namesz
		descStart := off + align4(namesz)
		descEnd := descStart + descsz
		if namesz < 0 || descsz < 0 || nameEnd > len(raw) || descEnd > len(raw) {
			return nil, fmt.Errorf("elfloader: truncated sdt note at offset %d", off-12)
		}
		name := string(bytes.TrimRight(raw[off:nameEnd], "\x00"))
		desc := raw[descStart:descEnd]
		off = descStart + align4(descsz)

		if typ != sdtNoteType || name != sdtNoteName {
			continue
		}
		p, err := parseSDTDesc(desc, bo)
		if err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}
	return probes, nil
}

func parseSDTDesc(desc []byte, bo binary.ByteOrder) (*symfile.Probe, error) {
	if len(desc) < 24 {
		return nil, fmt.Errorf("elfloader: sdt descriptor too short: %d bytes", len(desc))
	}
	addr := bo.Uint64(desc[0:])
	// desc[8:16] is the link-time base address, not needed here.
	sem := bo.Uint64(desc[16:])

	fields := strings.SplitN(string(desc[24:]), "\x00", 4)
	if len(fields) < 3 {
		return nil, fmt.Errorf("elfloader: sdt descriptor missing strings")
	}
	return &symfile.Probe{
		Provider: fields[0],
		Name:     fields[1],
		Args:     fields[2],
		Addr:     addr,
		SemAddr:  sem,
	}, nil
}

func align4(n int) int { return (n + 3) &^ 3 }
