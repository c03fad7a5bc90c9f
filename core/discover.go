package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"playbyte/system"
)

const problemNoSerialize = "core cannot serialize state; Bytes cannot be created with it"

// Discover asks every registered driver for cores under roots. Cores that
// cannot serialize are returned flagged with a Problem rather than dropped.
// Errors from individual drivers are joined; the descriptors found so far are
// still returned.
func (b *Bridge) Discover(ctx context.Context, roots []string) ([]*Descriptor, error) {
	var (
		all  []*Descriptor
		errs []error
	)

	for _, name := range Drivers() {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		drv, err := driverByName(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		descs, err := drv.Detect(ctx, roots)
		if err != nil {
			b.log.WithError(err).WithField("driver", name).Warn("core detection failed")
			errs = append(errs, fmt.Errorf("core: driver %s: %w", name, err))
		}
		for _, d := range descs {
			if d.Driver == "" {
				d.Driver = name
			}
			if !d.Capabilities.CanSerialize && d.Problem == "" {
				d.Problem = problemNoSerialize
			}
			l := b.log.WithFields(logrus.Fields{"core": d.ID, "system": d.System, "path": d.Path})
			if d.Problem != "" {
				l.WithField("problem", d.Problem).Warn("core is not usable for Bytes")
			} else {
				l.Debug("core discovered")
			}
			all = append(all, d)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].System != all[j].System {
			return all[i].System < all[j].System
		}
		return all[i].ID < all[j].ID
	})

	b.descsMu.Lock()
	b.descs = make(map[string]*Descriptor, len(all))
	for _, d := range all {
		b.descs[d.ID] = d
	}
	b.descsMu.Unlock()

	return all, errors.Join(errs...)
}

// Descriptor returns a core found by the last Discover.
func (b *Bridge) Descriptor(id string) (*Descriptor, bool) {
	b.descsMu.RLock()
	defer b.descsMu.RUnlock()
	d, ok := b.descs[id]
	return d, ok
}

// Cores returns the discovered cores for sys, usable ones first.
func (b *Bridge) Cores(sys system.System) []*Descriptor {
	b.descsMu.RLock()
	defer b.descsMu.RUnlock()
	var list []*Descriptor
	for _, d := range b.descs {
		if d.System == sys {
			list = append(list, d)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].UsableForBytes() != list[j].UsableForBytes() {
			return list[i].UsableForBytes()
		}
		return list[i].ID < list[j].ID
	})
	return list
}
