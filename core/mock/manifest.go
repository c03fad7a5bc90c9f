package mock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// WriteManifest writes m as dir/name.mockcore and returns the path.
func WriteManifest(dir, name string, m Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+ManifestExt)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err = toml.NewEncoder(f).Encode(m); err != nil {
		return "", fmt.Errorf("mock: encode manifest: %w", err)
	}
	return path, f.Close()
}
