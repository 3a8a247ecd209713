package symfile

import "fmt"

// Probe is a static instrumentation point compiled into an image, such
// as an SDT probe from an ELF note.
type Probe struct {
	Provider string
	Name     string
	Addr     uint64
	// SemAddr is the probe's semaphore address, or 0 when it has none.
	SemAddr uint64
	Args    string
}

func (p *Probe) String() string {
	return fmt.Sprintf("%s:%s@%#x", p.Provider, p.Name, p.Addr)
}
