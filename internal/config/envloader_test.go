package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envFixture struct {
	Name     string        `env:"ATOLL_TEST_NAME"`
	Count    int           `env:"ATOLL_TEST_COUNT"`
	Limit    uint64        `env:"ATOLL_TEST_LIMIT"`
	Enabled  bool          `env:"ATOLL_TEST_ENABLED"`
	Interval time.Duration `env:"ATOLL_TEST_INTERVAL"`
	Tags     []string      `env:"ATOLL_TEST_TAGS"`
	Nested   struct {
		Inner string `env:"ATOLL_TEST_INNER"`
	}
	untagged string
}

func TestMergeFromEnv(t *testing.T) {
	t.Setenv("ATOLL_TEST_NAME", "atoll")
	t.Setenv("ATOLL_TEST_COUNT", "-3")
	t.Setenv("ATOLL_TEST_LIMIT", "42")
	t.Setenv("ATOLL_TEST_ENABLED", "true")
	t.Setenv("ATOLL_TEST_INTERVAL", "1500ms")
	t.Setenv("ATOLL_TEST_TAGS", "a, b ,c")
	t.Setenv("ATOLL_TEST_INNER", "deep")

	var f envFixture
	f.untagged = "kept"
	require.NoError(t, MergeFromEnv(&f))

	assert.Equal(t, "atoll", f.Name)
	assert.Equal(t, -3, f.Count)
	assert.Equal(t, uint64(42), f.Limit)
	assert.True(t, f.Enabled)
	assert.Equal(t, 1500*time.Millisecond, f.Interval)
	assert.Equal(t, []string{"a", "b", "c"}, f.Tags)
	assert.Equal(t, "deep", f.Nested.Inner)
	assert.Equal(t, "kept", f.untagged)
}

func TestMergeFromEnvLeavesUnsetFields(t *testing.T) {
	t.Setenv("ATOLL_TEST_NAME", "")
	f := envFixture{Name: "original", Count: 7}
	require.NoError(t, MergeFromEnv(&f))
	assert.Equal(t, "original", f.Name)
	assert.Equal(t, 7, f.Count)
}

func TestMergeFromEnvBadValues(t *testing.T) {
	t.Setenv("ATOLL_TEST_COUNT", "many")
	var f envFixture
	require.Error(t, MergeFromEnv(&f))

	t.Setenv("ATOLL_TEST_COUNT", "1")
	t.Setenv("ATOLL_TEST_ENABLED", "definitely")
	require.Error(t, MergeFromEnv(&f))

	t.Setenv("ATOLL_TEST_ENABLED", "false")
	t.Setenv("ATOLL_TEST_INTERVAL", "soon")
	require.Error(t, MergeFromEnv(&f))
}

func TestMergeFromEnvNilPointer(t *testing.T) {
	var f *envFixture
	require.NoError(t, MergeFromEnv(f))
}
