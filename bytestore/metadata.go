package bytestore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"playbyte/system"
)

const (
	MetadataFile  = "byte.json"
	ThumbnailFile = "thumbnail.png"
	StateFile     = "state.xz"
)

// Metadata is the byte.json record of a Byte.
type Metadata struct {
	ID        string        `json:"byte_id"`
	CreatedAt time.Time     `json:"created_at"`
	Title     string        `json:"title"`
	System    system.System `json:"system"`
	RomSHA1   string        `json:"rom_sha1"`
	Tags      []string      `json:"tags"`

	// StateChecksum is the hex xxh3-64 of the decompressed state.
	StateChecksum string `json:"state_checksum"`
	StateSize     int64  `json:"state_size"`

	CoreID      string `json:"core_id,omitempty"`
	CoreVersion string `json:"core_version,omitempty"`
	Region      string `json:"region,omitempty"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`

	ThumbnailPath string `json:"thumbnail_path"`
	StatePath     string `json:"state_path"`
}

// Checksum formats the checksum stored in StateChecksum.
func Checksum(state []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(state))
}

// NewID returns a random Byte id.
func NewID() string {
	return uuid.NewString()
}

// NormalizeTags trims, drops empties and duplicates, and sorts.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

func validID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

func (m *Metadata) validate() error {
	switch {
	case !validID(m.ID):
		return fmt.Errorf("invalid byte id %q", m.ID)
	case m.CreatedAt.IsZero():
		return fmt.Errorf("missing created_at")
	case strings.TrimSpace(m.Title) == "":
		return fmt.Errorf("missing title")
	case len(m.RomSHA1) != 40:
		return fmt.Errorf("rom_sha1 %q is not a sha1", m.RomSHA1)
	case m.StateSize <= 0:
		return fmt.Errorf("state_size must be positive")
	case len(m.StateChecksum) != 16:
		return fmt.Errorf("state_checksum %q is malformed", m.StateChecksum)
	}
	if _, err := strconv.ParseUint(m.StateChecksum, 16, 64); err != nil {
		return fmt.Errorf("state_checksum %q is malformed", m.StateChecksum)
	}
	for _, p := range []string{m.StatePath, m.ThumbnailPath} {
		if p == "" || p != filepath.Base(p) || strings.HasPrefix(p, ".") {
			return fmt.Errorf("container path %q must be a plain file name", p)
		}
	}
	return nil
}

func decodeMetadata(b []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return m, err
	}
	return m, m.validate()
}

func encodeMetadata(m Metadata) ([]byte, error) {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return json.MarshalIndent(m, "", "  ")
}
