package symbolize

import (
	"bytes"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atoll-io/atoll/internal/symfile"
	"github.com/atoll-io/atoll/internal/testutil"
)

func demoSession(t *testing.T) (*symfile.Session, *symfile.Image) {
	t.Helper()
	log, _ := testutil.NewTestLogger()
	s := symfile.NewSession(log)
	img := s.NewSpace().AddImage("demo", "/usr/bin/demo")
	img.SetSymbols(symfile.NewSymTable([]symfile.Symbol{
		{Name: "demo_main", Addr: 0x1000, Size: 0x80, Kind: 'T'},
		{Name: "demo_helper", Addr: 0x2000, Size: 0x40, Kind: 'T'},
	}))
	return s, img
}

func demoProfile(m *profile.Mapping, locs ...*profile.Location) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     1,
		Mapping:    []*profile.Mapping{m},
		Location:   locs,
	}
	for _, loc := range locs {
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{1},
		})
	}
	return p
}

func TestAnnotateFillsFunctions(t *testing.T) {
	s, _ := demoSession(t)

	m := &profile.Mapping{ID: 1, Start: 0x1000, Limit: 0x9000, File: "/usr/bin/demo"}
	locA := &profile.Location{ID: 1, Mapping: m, Address: 0x1010}
	locB := &profile.Location{ID: 2, Mapping: m, Address: 0x2004}
	locC := &profile.Location{ID: 3, Mapping: m, Address: 0x8000}
	p := demoProfile(m, locA, locB, locC)

	resolved := Annotate(s, p)
	assert.Equal(t, 2, resolved)

	require.Len(t, locA.Line, 1)
	assert.Equal(t, "demo_main", locA.Line[0].Function.Name)
	require.Len(t, locB.Line, 1)
	assert.Equal(t, "demo_helper", locB.Line[0].Function.Name)
	assert.Empty(t, locC.Line)

	// Two locations in one function share the function entry.
	locD := &profile.Location{ID: 4, Mapping: m, Address: 0x1020}
	p.Location = append(p.Location, locD)
	assert.Equal(t, 1, Annotate(s, p))
	assert.Same(t, locA.Line[0].Function, locD.Line[0].Function)
}

func TestAnnotateKeepsExistingLines(t *testing.T) {
	s, _ := demoSession(t)

	m := &profile.Mapping{ID: 1, Start: 0x1000, Limit: 0x9000, File: "/usr/bin/demo"}
	fn := &profile.Function{ID: 7, Name: "already_there"}
	loc := &profile.Location{
		ID: 1, Mapping: m, Address: 0x1010,
		Line: []profile.Line{{Function: fn, Line: 3}},
	}
	p := demoProfile(m, loc)
	p.Function = []*profile.Function{fn}

	assert.Zero(t, Annotate(s, p))
	assert.Equal(t, "already_there", loc.Line[0].Function.Name)
}

func TestAnnotateUsesLineTable(t *testing.T) {
	s, img := demoSession(t)
	img.SetLineTable(symfile.NewLineTable([]symfile.LineEntry{
		{Addr: 0x1000, File: "demo.c", Line: 12},
		{Addr: 0x1040, File: "demo.c", Line: 30},
	}))

	m := &profile.Mapping{ID: 1, Start: 0x1000, Limit: 0x9000, File: "/usr/bin/demo"}
	loc := &profile.Location{ID: 1, Mapping: m, Address: 0x1044}
	p := demoProfile(m, loc)

	require.Equal(t, 1, Annotate(s, p))
	assert.Equal(t, int64(30), loc.Line[0].Line)
}

func TestAnnotatePrefersMappingMatch(t *testing.T) {
	log, _ := testutil.NewTestLogger()
	s := symfile.NewSession(log)
	sp := s.NewSpace()

	x := sp.AddImage("x", "/lib/x.so")
	x.SetSymbols(symfile.NewSymTable([]symfile.Symbol{
		{Name: "x_fn", Addr: 0x1000, Size: 0x1000, Kind: 'T'},
	}))
	y := sp.AddImage("y", "/lib/y.so")
	y.SetSymbols(symfile.NewSymTable([]symfile.Symbol{
		{Name: "y_fn", Addr: 0x1000, Size: 0x1000, Kind: 'T'},
	}))

	m := &profile.Mapping{ID: 1, Start: 0x1000, Limit: 0x9000, File: "/lib/y.so"}
	loc := &profile.Location{ID: 1, Mapping: m, Address: 0x1234}
	p := demoProfile(m, loc)

	require.Equal(t, 1, Annotate(s, p))
	assert.Equal(t, "y_fn", loc.Line[0].Function.Name)
}

func TestAnnotatedProfileRoundTrips(t *testing.T) {
	s, _ := demoSession(t)

	m := &profile.Mapping{ID: 1, Start: 0x1000, Limit: 0x9000, File: "/usr/bin/demo"}
	loc := &profile.Location{ID: 1, Mapping: m, Address: 0x1010}
	p := demoProfile(m, loc)
	require.Equal(t, 1, Annotate(s, p))

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	back, err := profile.Parse(&buf)
	require.NoError(t, err)

	require.Len(t, back.Location, 1)
	require.Len(t, back.Location[0].Line, 1)
	assert.Equal(t, "demo_main", back.Location[0].Line[0].Function.Name)
}
