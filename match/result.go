package match

import (
	"fmt"

	"playbyte/titledb"
)

// Kind says which resolution step produced a Result.
type Kind int

const (
	Unresolved Kind = iota
	ByOverride
	Exact
	Fuzzy
)

var kindNames = [...]string{"unresolved", "override", "exact", "fuzzy"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("match: unknown result kind %q", b)
}

// Result is the resolved identity of a ROM. Exactly one Kind applies.
type Result struct {
	Kind       Kind    `json:"kind"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`

	// Candidate is set for Exact and Fuzzy results.
	Candidate *titledb.Candidate `json:"candidate,omitempty"`
	// Database is the version of the database the candidate came from.
	Database string `json:"database,omitempty"`
	// Hash is the ROM hash that matched an override or candidate.
	Hash string `json:"hash,omitempty"`
}

func (r Result) String() string {
	return fmt.Sprintf("%s %q (%.3f)", r.Kind, r.Title, r.Confidence)
}
