package symfile

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSlotsCoverTable pins the slot registry to the table shape so a
// new LoaderOps member cannot be added without a matching slot.
func TestSlotsCoverTable(t *testing.T) {
	require.Equal(t, reflect.TypeOf(LoaderOps{}).NumField(), len(opSlots))

	seen := make(map[Op]bool)
	for _, slot := range opSlots {
		require.False(t, seen[slot.op], "duplicate slot for %s", slot.op)
		seen[slot.op] = true
	}
}

func TestSlotPresenceTracksMembers(t *testing.T) {
	full := fullOps(&callLog{})
	empty := &LoaderOps{}
	for _, slot := range opSlots {
		assert.True(t, slot.present(full), "%s missing from full table", slot.op)
		assert.False(t, slot.present(empty), "%s present in empty table", slot.op)
	}
}

func TestOpString(t *testing.T) {
	want := map[Op]string{
		OpGlobalInit:    "global_init",
		OpInit:          "init",
		OpRead:          "read",
		OpFinish:        "finish",
		OpOffsets:       "offsets",
		OpSegments:      "segments",
		OpReadLineTable: "read_linetable",
		OpRelocate:      "relocate",
		OpProbesGet:     "probes.get",
	}
	for op, name := range want {
		assert.Equal(t, name, op.String())
	}
	assert.Equal(t, "op(99)", Op(99).String())
}

func TestSupports(t *testing.T) {
	s, _ := newTestSession()
	sp := s.NewSpace()

	img := sp.AddImage("app", "")
	assert.Nil(t, img.Supports())

	img.SetLoaderOps(sparseOps(&callLog{}))
	assert.Equal(t, []Op{OpInit, OpRead}, img.Supports())

	// The shadow mirrors the same gaps, so support does not change
	// while tracing.
	s.SetTraceLoaderCalls(true)
	assert.Equal(t, []Op{OpInit, OpRead}, img.Supports())
}

func TestReadFlagsDistinct(t *testing.T) {
	assert.EqualValues(t, 1, ReadMain)
	assert.EqualValues(t, 2, ReadVerbose)
	assert.EqualValues(t, 4, ReadForce)
}
