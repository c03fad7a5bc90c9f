package bytestore

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// publishDir atomically renames tmp to final, failing if final exists.
func publishDir(tmp, final string) error {
	err := unix.Renameat2(unix.AT_FDCWD, tmp, unix.AT_FDCWD, final, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EEXIST), errors.Is(err, unix.ENOTEMPTY):
		return fmt.Errorf("%w: %s", ErrExists, final)
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EINVAL):
		// kernel or filesystem without RENAME_NOREPLACE
		return publishFallback(tmp, final)
	}
	return &os.LinkError{Op: "renameat2", Old: tmp, New: final, Err: err}
}
