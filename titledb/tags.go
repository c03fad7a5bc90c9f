package titledb

import (
	"slices"
	"strconv"
	"strings"
)

// Tags are the region and revision markers carried in a No-Intro title or a
// GoodTools-style file name.
type Tags struct {
	Regions  []string
	Revision string
	Verified bool
	Flags    []string
}

var noIntroRegions = map[string]bool{
	"USA": true, "Europe": true, "Japan": true, "World": true, "Asia": true,
	"Australia": true, "Brazil": true, "Canada": true, "China": true,
	"France": true, "Germany": true, "Italy": true, "Korea": true,
	"Netherlands": true, "Spain": true, "Sweden": true, "Taiwan": true,
	"Hong Kong": true, "Russia": true, "Scandinavia": true, "UK": true,
}

var goodRegions = map[string][]string{
	"U":  {"USA"},
	"E":  {"Europe"},
	"J":  {"Japan"},
	"W":  {"World"},
	"A":  {"Australia"},
	"B":  {"Brazil"},
	"C":  {"China"},
	"F":  {"France"},
	"G":  {"Germany"},
	"H":  {"Netherlands"},
	"I":  {"Italy"},
	"K":  {"Korea"},
	"S":  {"Spain"},
	"Sw": {"Sweden"},
	"UE": {"USA", "Europe"},
	"JU": {"Japan", "USA"},
	"UJ": {"USA", "Japan"},
	"JE": {"Japan", "Europe"},
}

// ParseTags extracts tags from every (...) and [...] group of s.
func ParseTags(s string) Tags {
	var t Tags
	for _, g := range groups(s) {
		if g.square {
			switch g.text {
			case "!":
				t.Verified = true
			default:
				t.Flags = append(t.Flags, g.text)
			}
			continue
		}
		t.parseParen(g.text)
	}
	return t
}

func (t *Tags) parseParen(text string) {
	if regions, ok := goodRegions[text]; ok {
		t.addRegions(regions...)
		return
	}

	parts := strings.Split(text, ",")
	var regions []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if noIntroRegions[p] {
			regions = append(regions, p)
		}
	}
	if len(regions) == len(parts) {
		t.addRegions(regions...)
		return
	}

	if rev, ok := parseRevision(text); ok {
		t.Revision = rev
		return
	}
	t.Flags = append(t.Flags, text)
}

func (t *Tags) addRegions(regions ...string) {
	for _, r := range regions {
		if !slices.Contains(t.Regions, r) {
			t.Regions = append(t.Regions, r)
		}
	}
}

// parseRevision maps "Rev 1", "Rev A", "V1.1" and "PRG1" onto a common
// numbering where the initial release is "0".
func parseRevision(text string) (string, bool) {
	switch {
	case strings.HasPrefix(text, "Rev "):
		r := strings.TrimSpace(text[4:])
		if len(r) == 1 && r[0] >= 'A' && r[0] <= 'Z' {
			return strconv.Itoa(int(r[0]-'A') + 1), true
		}
		if _, err := strconv.Atoi(r); err == nil {
			return r, true
		}
	case len(text) > 1 && (text[0] == 'V' || text[0] == 'v'):
		major, minor, ok := strings.Cut(text[1:], ".")
		if !ok || major != "1" {
			return "", false
		}
		if n, err := strconv.Atoi(minor); err == nil {
			return strconv.Itoa(n), true
		}
	case strings.HasPrefix(text, "PRG"):
		if n, err := strconv.Atoi(text[3:]); err == nil {
			return strconv.Itoa(n), true
		}
	}
	return "", false
}

// Rev returns the revision, "0" when none was tagged.
func (t Tags) Rev() string {
	if t.Revision == "" {
		return "0"
	}
	return t.Revision
}

// SharesRegion reports whether any region is shared with o.
func (t Tags) SharesRegion(o Tags) bool {
	for _, r := range t.Regions {
		if slices.Contains(o.Regions, r) {
			return true
		}
	}
	return false
}

type group struct {
	text   string
	square bool
}

func groups(s string) []group {
	var out []group
	for i := 0; i < len(s); i++ {
		var closer byte
		switch s[i] {
		case '(':
			closer = ')'
		case '[':
			closer = ']'
		default:
			continue
		}
		end := strings.IndexByte(s[i+1:], closer)
		if end < 0 {
			break
		}
		out = append(out, group{text: strings.TrimSpace(s[i+1 : i+1+end]), square: closer == ']'})
		i += end + 1
	}
	return out
}
