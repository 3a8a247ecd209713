// Package symbolize fills function names into pprof profiles using the
// symbol tables of a session's live images.
package symbolize

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/pprof/profile"

	"github.com/atoll-io/atoll/internal/symfile"
)

// Open reads a pprof profile from path.
func Open(path string) (*profile.Profile, error) {
	//nolint:gosec // G304: Profile path is user-supplied by design.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("symbolize: open %s: %w", path, err)
	}
	defer f.Close() // nolint:errcheck

	p, err := profile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("symbolize: parse %s: %w", path, err)
	}
	return p, nil
}

// Save writes a profile to path in compressed protobuf form.
func Save(path string, p *profile.Profile) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("symbolize: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := p.Write(f); err != nil {
		return fmt.Errorf("symbolize: write %s: %w", path, err)
	}
	return nil
}

// Annotate resolves locations that carry no function information
// against the session's images and returns how many gained one.
func Annotate(sess *symfile.Session, p *profile.Profile) int {
	funcs := make(map[string]*profile.Function, len(p.Function))
	nextID := uint64(1)
	for _, fn := range p.Function {
		funcs[fn.Name] = fn
		if fn.ID >= nextID {
			nextID = fn.ID + 1
		}
	}

	resolved := 0
	for _, loc := range p.Location {
		if len(loc.Line) > 0 {
			continue
		}
		sym, img, ok := resolveAcross(sess, loc)
		if !ok {
			continue
		}

		fn := funcs[sym.Name]
		if fn == nil {
			fn = &profile.Function{
				ID:         nextID,
				Name:       sym.Name,
				SystemName: sym.Name,
				Filename:   img.Path(),
			}
			nextID++
			funcs[sym.Name] = fn
			p.Function = append(p.Function, fn)
		}

		line := profile.Line{Function: fn}
		if lt := img.LineTable(); lt != nil {
			if le, ok := lt.PCToLine(loc.Address - img.LoadBias()); ok {
				line.Line = int64(le.Line)
			}
		}
		loc.Line = []profile.Line{line}
		resolved++
	}
	return resolved
}

// resolveAcross tries every image in the session, preferring one whose
// backing file matches the location's mapping.
func resolveAcross(sess *symfile.Session, loc *profile.Location) (symfile.Symbol, *symfile.Image, bool) {
	var (
		firstSym symfile.Symbol
		firstImg *symfile.Image
		found    bool
	)
	for _, sp := range sess.Spaces() {
		for _, img := range sp.Images() {
			sym, ok := img.ResolveAddr(loc.Address)
			if !ok {
				continue
			}
			if loc.Mapping != nil && loc.Mapping.File != "" &&
				filepath.Base(loc.Mapping.File) == filepath.Base(img.Path()) {
				return sym, img, true
			}
			if !found {
				firstSym, firstImg, found = sym, img, true
			}
		}
	}
	return firstSym, firstImg, found
}
