package cli

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/atoll-io/atoll/internal/config"
	"github.com/atoll-io/atoll/internal/loader/elfloader"
	"github.com/atoll-io/atoll/internal/logging"
	"github.com/atoll-io/atoll/internal/symfile"
)

// loadConfig loads the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newSession builds a session from the configuration, with loader call
// tracing already applied.
func newSession(cfg *config.Config) (*symfile.Session, zerolog.Logger) {
	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	sess := symfile.NewSession(log)
	if cfg.Trace.LoaderCalls {
		sess.SetTraceLoaderCalls(true)
	}
	return sess, log
}

// loadImage adds path to the space as an ELF image and reads its
// symbols. The image is removed again when reading fails.
func loadImage(space *symfile.Space, path string, flags symfile.ReadFlags) (*symfile.Image, error) {
	ops, err := elfloader.OpsForFile(path)
	if err != nil {
		return nil, err
	}

	img := space.AddImage(filepath.Base(path), path)
	img.SetLoaderOps(ops)
	if err := img.Load(flags); err != nil {
		_ = space.RemoveImage(img)
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return img, nil
}
