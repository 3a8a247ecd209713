package symfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "<nil>"},
		{"address", uint64(0xdeadbeef), "0xdeadbeef"},
		{"flags", ReadMain | ReadVerbose, "0x3"},
		{"string", `a "b"`, `"a \"b\""`},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"typed nil pointer", (*SegmentData)(nil), "<nil>"},
		{"nil slice", []byte(nil), "<nil>"},
		{"nil probe slice", []*Probe(nil), "<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderValue(tt.in))
		})
	}
}

func TestRenderValuePointers(t *testing.T) {
	assert.True(t, strings.HasPrefix(renderValue(&SegmentData{}), "0x"))
	assert.True(t, strings.HasPrefix(renderValue([]byte{1}), "0x"))
	assert.True(t, strings.HasPrefix(renderValue(&Section{Name: ".text"}), "0x"))
}
