package symfile

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// FingerprintFile hashes a file's contents. Images record the
// fingerprint at read time so staleness can be detected later.
func FingerprintFile(path string) (uint64, error) {
	//nolint:gosec // G304: Path comes from the image being tracked.
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	defer f.Close() // nolint:errcheck

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return h.Sum64(), nil
}
