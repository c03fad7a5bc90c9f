//go:build !debug

package dist

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// Content is the feed view's static files.
var Content fs.FS

func init() {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	Content = sub
}
