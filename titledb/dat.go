// Package titledb reads No-Intro / clrmamepro DAT files into a hash-addressed
// title catalog.
package titledb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"playbyte/system"
)

// Candidate is one canonical title from a reference database.
type Candidate struct {
	Title  string        `json:"title"`
	System system.System `json:"system"`
	// SHA1 is the hash of the first ROM entry of the game; every entry is indexed.
	SHA1 string `json:"sha1"`
	Tags Tags   `json:"tags"`
}

// Database is a parsed reference database for one system.
type Database struct {
	Path        string
	Name        string
	Description string
	Version     string
	System      system.System

	Candidates []Candidate
	bySHA1     map[string]int
}

// Load parses the DAT file at path. The system comes from the DAT header,
// falling back to the file name.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	db, err := Parse(f)
	if err != nil {
		var pe *DatabaseParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	db.Path = path
	if db.System == system.Unknown {
		db.System = system.FromDatName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		for i := range db.Candidates {
			db.Candidates[i].System = db.System
		}
	}
	return db, nil
}

// Parse reads clrmamepro DAT text:
//
//	clrmamepro ( name "..." version "..." )
//	game ( name "..." rom ( name "..." size 1 crc ... sha1 ... ) )
func Parse(r io.Reader) (*Database, error) {
	lx := newLexer(r)
	db := &Database{bySHA1: make(map[string]int)}
	seen := make(map[string]int)

	for {
		t, err := lx.Next()
		if err != nil {
			return nil, err
		}
		if t.kind == tokEOF {
			break
		}
		if t.kind != tokWord {
			return nil, unexpected(t, "a block name")
		}
		if err = expect(lx, tokOpen); err != nil {
			return nil, err
		}
		body, err := parseBlock(lx, t.line)
		if err != nil {
			return nil, err
		}

		switch t.text {
		case "clrmamepro":
			db.Name = body.get("name")
			db.Description = body.get("description")
			db.Version = body.get("version")
			db.System = system.FromDatName(db.Name)
		case "game", "machine":
			db.addGame(body, seen)
		}
	}

	if len(db.Candidates) == 0 {
		return nil, &DatabaseParseError{Line: lx.line, Reason: "no games with sha1 hashes"}
	}
	for i := range db.Candidates {
		db.Candidates[i].System = db.System
	}
	return db, nil
}

func (db *Database) addGame(body *block, seen map[string]int) {
	title := body.get("name")
	if title == "" {
		title = body.get("description")
	}
	if title == "" {
		return
	}

	for _, rom := range body.blocks("rom") {
		sha := normalizeSHA1(rom.get("sha1"))
		if sha == "" {
			continue
		}
		idx, ok := seen[title]
		if !ok {
			idx = len(db.Candidates)
			seen[title] = idx
			db.Candidates = append(db.Candidates, Candidate{Title: title, SHA1: sha, Tags: ParseTags(title)})
		}
		if _, dup := db.bySHA1[sha]; !dup {
			db.bySHA1[sha] = idx
		}
	}
}

// BySHA1 finds the candidate owning a ROM hash.
func (db *Database) BySHA1(sha string) (Candidate, bool) {
	idx, ok := db.bySHA1[strings.ToLower(sha)]
	if !ok {
		return Candidate{}, false
	}
	return db.Candidates[idx], true
}

// Len is the number of distinct titles.
func (db *Database) Len() int { return len(db.Candidates) }

// Titles lists every title in lexical order.
func (db *Database) Titles() []string {
	titles := make([]string, len(db.Candidates))
	for i, c := range db.Candidates {
		titles[i] = c.Title
	}
	sort.Strings(titles)
	return titles
}

func (db *Database) String() string {
	return fmt.Sprintf("%s (%s, %d titles)", db.Name, db.Version, len(db.Candidates))
}

func normalizeSHA1(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 40 {
		return ""
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return ""
		}
	}
	return s
}

type field struct {
	key   string
	value string
	block *block
}

type block struct {
	fields []field
}

func (b *block) get(key string) string {
	for _, f := range b.fields {
		if f.key == key && f.block == nil {
			return f.value
		}
	}
	return ""
}

func (b *block) blocks(key string) []*block {
	var out []*block
	for _, f := range b.fields {
		if f.key == key && f.block != nil {
			out = append(out, f.block)
		}
	}
	return out
}

// parseBlock reads key/value pairs up to the ')' matching an already consumed '('.
func parseBlock(lx *lexer, openLine int) (*block, error) {
	b := &block{}
	for {
		t, err := lx.Next()
		if err != nil {
			return nil, err
		}
		switch t.kind {
		case tokClose:
			return b, nil
		case tokEOF:
			return nil, &DatabaseParseError{Line: openLine, Reason: "unbalanced parentheses: block is never closed"}
		case tokOpen:
			return nil, unexpected(t, "a key")
		}

		v, err := lx.Next()
		if err != nil {
			return nil, err
		}
		switch v.kind {
		case tokOpen:
			nested, err := parseBlock(lx, v.line)
			if err != nil {
				return nil, err
			}
			b.fields = append(b.fields, field{key: t.text, block: nested})
		case tokWord, tokString:
			b.fields = append(b.fields, field{key: t.text, value: v.text})
		case tokClose:
			// a trailing key with no value
			return b, nil
		default:
			return nil, &DatabaseParseError{Line: openLine, Reason: "unbalanced parentheses: block is never closed"}
		}
	}
}

func expect(lx *lexer, kind tokenKind) error {
	t, err := lx.Next()
	if err != nil {
		return err
	}
	if t.kind != kind {
		return unexpected(t, "'('")
	}
	return nil
}

func unexpected(t token, want string) error {
	if t.kind == tokClose {
		return &DatabaseParseError{Line: t.line, Reason: "unbalanced parentheses: unexpected ')'"}
	}
	return &DatabaseParseError{Line: t.line, Reason: fmt.Sprintf("expected %s, found %s", want, t)}
}
