//go:build linux

package integration

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/pprof/profile"
	"github.com/rs/zerolog"

	"github.com/atoll-io/atoll/internal/cli/report"
	"github.com/atoll-io/atoll/internal/loader/elfloader"
	"github.com/atoll-io/atoll/internal/symbolize"
	"github.com/atoll-io/atoll/internal/symfile"
	"github.com/atoll-io/atoll/internal/testutil"
	"github.com/atoll-io/atoll/internal/watch"
)

// copySelfExe copies the running test binary somewhere writable so the
// watcher leg can rewrite it.
func copySelfExe(t *testing.T) string {
	t.Helper()
	src, err := os.Open("/proc/self/exe")
	if err != nil {
		t.Fatalf("Failed to open test binary: %v", err)
	}
	defer src.Close()

	path := filepath.Join(t.TempDir(), "app")
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o755)
	if err != nil {
		t.Fatalf("Failed to create copy: %v", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		t.Fatalf("Failed to copy test binary: %v", err)
	}
	if err := dst.Close(); err != nil {
		t.Fatalf("Failed to close copy: %v", err)
	}
	return path
}

// TestBinaryPipelineEndToEnd tests the complete symbol pipeline for an
// ELF binary: load -> lookup -> watch -> rewrite -> forced reload.
func TestBinaryPipelineEndToEnd(t *testing.T) {
	path := copySelfExe(t)

	log, _ := testutil.NewTestLogger()
	sess := symfile.NewSession(log)
	defer sess.Close()
	sp := sess.NewSpace()

	ops, err := elfloader.OpsForFile(path)
	if err != nil {
		t.Fatalf("Failed to build loader table: %v", err)
	}
	img := sp.AddImage("app", path)
	img.SetLoaderOps(ops)
	if err := img.Load(symfile.ReadMain); err != nil {
		t.Fatalf("Failed to load binary: %v", err)
	}
	if !img.HasSymbols() {
		t.Fatal("Expected symbols after load")
	}
	t.Logf("Loaded %d symbols", img.Symbols().Len())

	// Every Go test binary carries runtime.main.
	line, ok := report.LookupSymbol(sp.Images(), "runtime.main")
	if !ok {
		t.Fatal("runtime.main not found")
	}
	t.Logf("Lookup: %s", line)

	// The symbol's own address resolves back to its name.
	sym, ok := img.Symbols().Lookup("runtime.main")
	if !ok {
		t.Fatal("runtime.main missing from symbol table")
	}
	back, ok := img.ResolveAddr(sym.Addr + 1)
	if !ok || back.Name != "runtime.main" {
		t.Errorf("Address %#x resolved to %q", sym.Addr+1, back.Name)
	}

	// Watch the file, then rewrite it the way a rebuild would.
	w, err := watch.New(log, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer w.Close()
	if err := w.Track(img); err != nil {
		t.Fatalf("Failed to track image: %v", err)
	}
	w.Start()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("Failed to reopen binary: %v", err)
	}
	if _, err := f.Write([]byte{0}); err != nil {
		t.Fatalf("Failed to append to binary: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close binary: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !img.Stale() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !img.Stale() {
		t.Fatal("Image never went stale after rewrite")
	}
	t.Log("Watcher flagged the rewrite")

	// A forced reload picks the file back up and clears the flag.
	if err := img.Load(symfile.ReadForce); err != nil {
		t.Fatalf("Forced reload failed: %v", err)
	}
	if img.Stale() {
		t.Error("Reload should clear staleness")
	}
	if !img.HasSymbols() {
		t.Error("Reload should leave symbols in place")
	}
}

// TestProfileAnnotationEndToEnd tests the symbolization flow: a raw
// address-only profile gains function names from a loaded image and
// keeps them across a save and reopen.
func TestProfileAnnotationEndToEnd(t *testing.T) {
	path := "/proc/self/exe"
	sess := symfile.NewSession(zerolog.Nop())
	defer sess.Close()
	sp := sess.NewSpace()

	ops, err := elfloader.OpsForFile(path)
	if err != nil {
		t.Fatalf("Failed to build loader table: %v", err)
	}
	img := sp.AddImage("exe", path)
	img.SetLoaderOps(ops)
	if err := img.Load(symfile.ReadMain); err != nil {
		t.Fatalf("Failed to load binary: %v", err)
	}

	sym, ok := img.Symbols().Lookup("runtime.main")
	if !ok {
		t.Fatal("runtime.main missing from symbol table")
	}

	// A minimal CPU profile with one bare-address sample.
	mapping := &profile.Mapping{ID: 1, Start: 0, Limit: 1 << 47, File: path}
	loc := &profile.Location{ID: 1, Mapping: mapping, Address: sym.Addr + 1}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     1,
		Mapping:    []*profile.Mapping{mapping},
		Location:   []*profile.Location{loc},
		Sample:     []*profile.Sample{{Location: []*profile.Location{loc}, Value: []int64{1}}},
	}

	if got := symbolize.Annotate(sess, p); got != 1 {
		t.Fatalf("Expected 1 annotated location, got %d", got)
	}

	// The annotation has to survive serialization.
	out := filepath.Join(t.TempDir(), "cpu.pb.gz")
	if err := symbolize.Save(out, p); err != nil {
		t.Fatalf("Failed to save profile: %v", err)
	}
	reopened, err := symbolize.Open(out)
	if err != nil {
		t.Fatalf("Failed to reopen profile: %v", err)
	}

	found := false
	for _, fn := range reopened.Function {
		if fn.Name == "runtime.main" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("runtime.main missing from reopened profile, functions: %s", functionNames(reopened))
	}
}

func functionNames(p *profile.Profile) string {
	names := make([]string, 0, len(p.Function))
	for _, fn := range p.Function {
		names = append(names, fn.Name)
	}
	return fmt.Sprintf("%v", names)
}
