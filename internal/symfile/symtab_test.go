package symfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureTable() *SymTable {
	// Deliberately unsorted input.
	return NewSymTable([]Symbol{
		{Name: "do_work", Addr: 0x2000, Size: 0, Kind: 'T'},
		{Name: "init_main", Addr: 0x1000, Size: 0x10, Kind: 'T'},
		{Name: "state", Addr: 0x3000, Size: 0x8, Kind: 'D'},
	})
}

func TestSymTableSortsInput(t *testing.T) {
	tbl := fixtureTable()
	syms := tbl.Symbols()
	require.Len(t, syms, 3)
	assert.Equal(t, "init_main", syms[0].Name)
	assert.Equal(t, "do_work", syms[1].Name)
	assert.Equal(t, "state", syms[2].Name)
}

func TestResolveSizedSymbol(t *testing.T) {
	tbl := fixtureTable()

	sym, ok := tbl.Resolve(0x1008)
	require.True(t, ok)
	assert.Equal(t, "init_main", sym.Name)

	// One past the end of a sized symbol is a miss.
	_, ok = tbl.Resolve(0x1010)
	assert.False(t, ok)

	// Below the first symbol nothing matches.
	_, ok = tbl.Resolve(0x500)
	assert.False(t, ok)
}

func TestResolveSizelessNearestBelow(t *testing.T) {
	tbl := fixtureTable()

	sym, ok := tbl.Resolve(0x2f00)
	require.True(t, ok)
	assert.Equal(t, "do_work", sym.Name)

	// Resolution is stable across cache invalidation.
	tbl.InvalidateCache()
	sym, ok = tbl.Resolve(0x2f00)
	require.True(t, ok)
	assert.Equal(t, "do_work", sym.Name)
}

func TestLookupByName(t *testing.T) {
	tbl := fixtureTable()

	sym, ok := tbl.Lookup("state")
	require.True(t, ok)
	assert.Equal(t, uint64(0x3000), sym.Addr)

	_, ok = tbl.Lookup("missing")
	assert.False(t, ok)
}

func TestSymbolIsText(t *testing.T) {
	assert.True(t, Symbol{Kind: 'T'}.IsText())
	assert.True(t, Symbol{Kind: 'w'}.IsText())
	assert.False(t, Symbol{Kind: 'D'}.IsText())
	assert.False(t, Symbol{Kind: 'b'}.IsText())
}

func TestLineTablePCToLine(t *testing.T) {
	lt := NewLineTable([]LineEntry{
		{Addr: 0x1100, File: "main.c", Line: 20},
		{Addr: 0x1000, File: "main.c", Line: 10},
	})
	require.Equal(t, 2, lt.Len())

	entry, ok := lt.PCToLine(0x1050)
	require.True(t, ok)
	assert.Equal(t, 10, entry.Line)

	entry, ok = lt.PCToLine(0x1100)
	require.True(t, ok)
	assert.Equal(t, 20, entry.Line)

	_, ok = lt.PCToLine(0xf00)
	assert.False(t, ok)
}

func TestProbeString(t *testing.T) {
	p := &Probe{Provider: "libc", Name: "memory_malloc_retry", Addr: 0x7f000}
	assert.Equal(t, "libc:memory_malloc_retry@0x7f000", p.String())
}

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	c := filepath.Join(dir, "c")
	require.NoError(t, os.WriteFile(a, []byte("same contents"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same contents"), 0o644))
	require.NoError(t, os.WriteFile(c, []byte("different"), 0o644))

	fpA, err := FingerprintFile(a)
	require.NoError(t, err)
	fpB, err := FingerprintFile(b)
	require.NoError(t, err)
	fpC, err := FingerprintFile(c)
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
	assert.NotEqual(t, fpA, fpC)

	_, err = FingerprintFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
