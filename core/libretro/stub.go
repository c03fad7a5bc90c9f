//go:build !(darwin || freebsd || linux)

package libretro

import (
	"context"
	"fmt"
	"runtime"

	"playbyte/core"
)

func (d *Driver) Detect(ctx context.Context, roots []string) ([]*core.Descriptor, error) {
	return nil, nil
}

func (d *Driver) Open(ctx context.Context, desc *core.Descriptor) (core.Instance, error) {
	return nil, core.NewCoreLoadError(desc.ID, fmt.Errorf("libretro cores cannot be loaded on %s", runtime.GOOS))
}
