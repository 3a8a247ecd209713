package symfile

import (
	"sort"
	"sync"
)

// Symbol is a single entry in an image's symbol table. Addresses are
// file-relative; image queries apply the load bias on top.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
	Kind byte // kallsyms-style type letter: T/t text, D/d data, B/b bss
}

// IsText reports whether the symbol lives in executable code.
func (s Symbol) IsText() bool {
	switch s.Kind {
	case 'T', 't', 'W', 'w':
		return true
	}
	return false
}

// SymTable holds a sorted symbol list with a resolution cache.
// All methods are safe for concurrent use.
type SymTable struct {
	mu     sync.RWMutex
	syms   []Symbol
	byName map[string]int
	cache  map[uint64]Symbol
}

// NewSymTable builds a table from syms. The input is copied and sorted
// by address.
func NewSymTable(syms []Symbol) *SymTable {
	t := &SymTable{
		syms:   make([]Symbol, len(syms)),
		byName: make(map[string]int, len(syms)),
		cache:  make(map[uint64]Symbol),
	}
	copy(t.syms, syms)
	sort.Slice(t.syms, func(i, j int) bool { return t.syms[i].Addr < t.syms[j].Addr })
	for i, s := range t.syms {
		if _, ok := t.byName[s.Name]; !ok {
			t.byName[s.Name] = i
		}
	}
	return t
}

// Len returns the number of symbols in the table.
func (t *SymTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.syms)
}

// Symbols returns the sorted symbol list. The slice is shared; callers
// must not modify it.
func (t *SymTable) Symbols() []Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.syms
}

// Resolve maps an address to the symbol containing it. Symbols with a
// known size match only within [Addr, Addr+Size); sizeless symbols match
// as nearest-below, the way kernel symbol listings are resolved.
func (t *SymTable) Resolve(addr uint64) (Symbol, bool) {
	t.mu.RLock()
	if s, ok := t.cache[addr]; ok {
		t.mu.RUnlock()
		return s, true
	}
	i := sort.Search(len(t.syms), func(i int) bool { return t.syms[i].Addr > addr })
	if i == 0 {
		t.mu.RUnlock()
		return Symbol{}, false
	}
	s := t.syms[i-1]
	t.mu.RUnlock()

	if s.Size > 0 && addr >= s.Addr+s.Size {
		return Symbol{}, false
	}

	t.mu.Lock()
	t.cache[addr] = s
	t.mu.Unlock()
	return s, true
}

// Lookup finds a symbol by exact name.
func (t *SymTable) Lookup(name string) (Symbol, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return t.syms[i], true
}

// InvalidateCache drops all cached resolutions.
func (t *SymTable) InvalidateCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = make(map[uint64]Symbol)
}
