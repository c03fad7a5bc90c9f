package bytestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// publishFallback renames tmp to final unless final exists. The caller holds
// the id's write slot, so no other writer in this process can race it.
func publishFallback(tmp, final string) error {
	if _, err := os.Lstat(final); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, final)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmp, final)
}

// syncDir flushes directory entries. Not every platform supports it.
func syncDir(path string) {
	d, err := os.Open(path)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
