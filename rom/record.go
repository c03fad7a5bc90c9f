// Package rom fingerprints ROM files and keeps a hash-addressed index of them.
package rom

import (
	"errors"
	"strconv"
	"time"

	"playbyte/system"
)

// ErrNotFound is returned when no ROM with the requested hash is known.
var ErrNotFound = errors.New("rom: not found")

// Record is the identity of one ROM file on disk.
type Record struct {
	Path    string        `json:"path"`
	Size    int64         `json:"size"`
	ModTime time.Time     `json:"mtime"`
	SHA1    string        `json:"sha1"`
	System  system.System `json:"system"`

	// HeaderlessSHA1 is set for SNES dumps that carry a 512-byte copier header.
	HeaderlessSHA1 string `json:"headerless_sha1,omitempty"`
}

// Hashes returns every hash the record can be matched by, full contents first.
func (r Record) Hashes() []string {
	if r.HeaderlessSHA1 == "" {
		return []string{r.SHA1}
	}
	return []string{r.SHA1, r.HeaderlessSHA1}
}

// HasHash reports whether h matches the full or headerless hash.
func (r Record) HasHash(h string) bool {
	return h != "" && (h == r.SHA1 || h == r.HeaderlessSHA1)
}

// cacheKey identifies a file revision; a changed size or mtime forces a rehash.
func cacheKey(path string, size int64, mtime time.Time) string {
	return path + "\x00" + strconv.FormatInt(size, 10) + "\x00" + strconv.FormatInt(mtime.UnixNano(), 10)
}
