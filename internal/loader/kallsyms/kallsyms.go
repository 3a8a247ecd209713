// Package kallsyms loads the kernel symbol listing as an image.
//
// The kernel is symbols-only: there are no sections, offsets, segments
// or line data to manage, so the loader table carries Read alone and
// every other operation stays absent.
package kallsyms

import (
	"errors"
	"fmt"

	"github.com/atoll-io/atoll/internal/symfile"
	"github.com/atoll-io/atoll/internal/sys/proc"
)

// ErrAddressesHidden is returned when the listing exists but every
// address in it is zeroed by kernel pointer restrictions.
var ErrAddressesHidden = errors.New("kallsyms: addresses hidden")

type loader struct {
	path string
}

// Ops returns the loader table for the kallsyms listing at path. Pass
// proc.DefaultKallsymsPath for the running kernel.
func Ops(path string) *symfile.LoaderOps {
	l := &loader{path: path}
	return &symfile.LoaderOps{Read: l.read}
}

func (l *loader) read(img *symfile.Image, flags symfile.ReadFlags) error {
	if img.Symbols() != nil && flags&symfile.ReadForce == 0 {
		return nil
	}

	ksyms, zeroed, err := proc.ReadKallsyms(l.path)
	if err != nil {
		return err
	}
	if len(ksyms) == 0 {
		if zeroed > 0 {
			return fmt.Errorf("%w: %d symbols with zeroed addresses, need root or kernel.kptr_restrict=0", ErrAddressesHidden, zeroed)
		}
		return fmt.Errorf("kallsyms: no symbols in %s", l.path)
	}

	syms := make([]symfile.Symbol, 0, len(ksyms))
	for _, ks := range ksyms {
		name := ks.Name
		if ks.Module != "" {
			name = name + " [" + ks.Module + "]"
		}
		syms = append(syms, symfile.Symbol{Name: name, Addr: ks.Address, Kind: ks.Type})
	}
	img.SetSymbols(symfile.NewSymTable(syms))
	img.ClearStale()
	return nil
}
