//go:build debug

package dist

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// Content serves the files next to this source file so edits show up without a rebuild.
var Content fs.FS

func init() {
	_, file, _, _ := runtime.Caller(0)
	Content = os.DirFS(filepath.Join(filepath.Dir(file), "static"))
}
