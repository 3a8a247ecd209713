package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atoll-io/atoll/internal/config"
)

// setTestConfig points the config loader at a temp directory and blanks
// all override variables.
func setTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ATOLL_CONFIG", dir)
	for _, v := range []string{
		"ATOLL_LOG_LEVEL", "ATOLL_LOG_PRETTY", "ATOLL_TRACE_LOADER_CALLS",
		"ATOLL_WATCH_ENABLED", "ATOLL_WATCH_DEBOUNCE_MS", "ATOLL_KALLSYMS_PATH",
	} {
		t.Setenv(v, "")
	}
	return dir
}

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, newVersionCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "Atoll version")
	assert.Contains(t, out, "Go version:")
}

func TestDebugSetShowRoundTrip(t *testing.T) {
	setTestConfig(t)

	out, err := runCmd(t, newDebugCmd(), "set", "symfile", "on")
	require.NoError(t, err)
	assert.Contains(t, out, "symfile debugging is on")

	cfg, err := config.NewLoader().Load()
	require.NoError(t, err)
	assert.True(t, cfg.Trace.LoaderCalls)

	out, err = runCmd(t, newDebugCmd(), "show", "symfile")
	require.NoError(t, err)
	assert.Contains(t, out, "symfile debugging is on")

	_, err = runCmd(t, newDebugCmd(), "set", "symfile", "off")
	require.NoError(t, err)

	out, err = runCmd(t, newDebugCmd(), "show")
	require.NoError(t, err)
	assert.Contains(t, out, "symfile debugging is off")
}

func TestDebugSetRejectsBadInput(t *testing.T) {
	setTestConfig(t)

	_, err := runCmd(t, newDebugCmd(), "set", "symfile", "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected on or off")

	_, err = runCmd(t, newDebugCmd(), "set", "telemetry", "on")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown debug setting")

	_, err = runCmd(t, newDebugCmd(), "show", "telemetry")
	require.Error(t, err)
}

func TestConfigInitWritesFile(t *testing.T) {
	dir := setTestConfig(t)

	out, err := runCmd(t, newConfigCmd(), "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "logging:")
	assert.Contains(t, string(data), "kallsyms_path:")
}

func TestConfigViewShowsDefaults(t *testing.T) {
	setTestConfig(t)

	out, err := runCmd(t, newConfigCmd(), "view")
	require.NoError(t, err)
	assert.Contains(t, out, "level: info")
	assert.Contains(t, out, "loader_calls: false")
}

func TestConfigPath(t *testing.T) {
	dir := setTestConfig(t)

	out, err := runCmd(t, newConfigCmd(), "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml")+"\n", out)
}

func TestConfigValidate(t *testing.T) {
	dir := setTestConfig(t)

	out, err := runCmd(t, newConfigCmd(), "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "built-in defaults")

	_, err = runCmd(t, newConfigCmd(), "init")
	require.NoError(t, err)

	out, err = runCmd(t, newConfigCmd(), "validate")
	require.NoError(t, err)
	assert.Contains(t, out, ": valid")

	bad := "logging:\n  level: verbose\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(bad), 0o644))

	_, err = runCmd(t, newConfigCmd(), "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

const kallsymsFixture = `ffffffff81000000 T startup_64
ffffffff81000030 T secondary_startup_64
ffffffff810001f0 T start_kernel
ffffffffc0a00000 t demo_helper	[demo_mod]
`

func TestKernelCmdWithFixture(t *testing.T) {
	setTestConfig(t)
	path := filepath.Join(t.TempDir(), "kallsyms")
	require.NoError(t, os.WriteFile(path, []byte(kallsymsFixture), 0o644))

	out, err := runCmd(t, newKernelCmd(),
		"--kallsyms", path,
		"--lookup", "start_kernel",
		"--resolve", "0xffffffff81000010")
	require.NoError(t, err)
	assert.Contains(t, out, ": 4 symbols")
	assert.Contains(t, out, "0xffffffff810001f0 start_kernel")
	assert.Contains(t, out, "startup_64+0x10")
}

func TestKernelCmdMissingListing(t *testing.T) {
	setTestConfig(t)

	_, err := runCmd(t, newKernelCmd(), "--kallsyms", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestKernelCmdUnknownSymbol(t *testing.T) {
	setTestConfig(t)
	path := filepath.Join(t.TempDir(), "kallsyms")
	require.NoError(t, os.WriteFile(path, []byte(kallsymsFixture), 0o644))

	_, err := runCmd(t, newKernelCmd(), "--kallsyms", path, "--lookup", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no symbol named")
}

func TestInspectRejectsBadFormat(t *testing.T) {
	setTestConfig(t)

	_, err := runCmd(t, newInspectCmd(), "--format", "xml", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestInspectMissingFile(t *testing.T) {
	setTestConfig(t)

	_, err := runCmd(t, newInspectCmd(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestAttachRejectsBadPid(t *testing.T) {
	setTestConfig(t)

	_, err := runCmd(t, newAttachCmd(), "not-a-pid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pid")
}

func TestSymbolizeRequiresExe(t *testing.T) {
	setTestConfig(t)

	_, err := runCmd(t, newSymbolizeCmd(), "profile.pb.gz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--exe")
}
