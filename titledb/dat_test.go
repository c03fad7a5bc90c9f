package titledb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/system"
)

func TestLoad(t *testing.T) {
	db, err := Load("testdata/snes.dat")
	require.NoError(t, err)

	assert.Equal(t, "20240101-000000", db.Version)
	assert.Equal(t, system.SNES, db.System)
	assert.Equal(t, 3, db.Len())

	c, ok := db.BySHA1("6b47bb75d16514b6a476aa0c73a683a2a4c18765")
	require.True(t, ok)
	assert.Equal(t, "Super Mario World (USA)", c.Title)
	assert.Equal(t, system.SNES, c.System)
	assert.Equal(t, []string{"USA"}, c.Tags.Regions)

	c, ok = db.BySHA1("c3a8d2dbf7f0a4a3b2f6a1e28ddc4b9a09a2f5d1")
	require.True(t, ok)
	assert.Equal(t, "1", c.Tags.Revision)

	_, ok = db.BySHA1("0123456789ABCDEF0123456789ABCDEF01234567")
	assert.True(t, ok)

	assert.Equal(t, []string{
		"Super Mario World (Europe) (Rev 1)",
		"Super Mario World (Japan)",
		"Super Mario World (USA)",
	}, db.Titles())
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"unclosed game", "game (\n name \"A\"\n rom ( sha1 6b47bb75d16514b6a476aa0c73a683a2a4c18765 )\n", 1},
		{"stray close", "clrmamepro ( version 1 )\n)\n", 2},
		{"unterminated quote", "game (\n name \"A\n)\n", 2},
		{"no games", "clrmamepro ( name \"x\" version \"1\" )\n", 0},
		{"empty", "", 0},
		{"missing open", "game name \"A\"", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.text))
			var pe *DatabaseParseError
			require.ErrorAs(t, err, &pe)
			if tt.line > 0 {
				assert.Equal(t, tt.line, pe.Line)
			}
		})
	}
}

func TestParse_DescriptionFallbackAndSystemFromName(t *testing.T) {
	text := `game ( description "Tetris (World) (Rev A)" rom ( sha1 aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa ) )`
	db, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	require.Equal(t, 1, db.Len())
	assert.Equal(t, "Tetris (World) (Rev A)", db.Candidates[0].Title)
	assert.Equal(t, system.Unknown, db.System)
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		in       string
		regions  []string
		revision string
		verified bool
	}{
		{"Super Mario World (USA)", []string{"USA"}, "", false},
		{"Zelda (USA, Europe) (Rev 2)", []string{"USA", "Europe"}, "2", false},
		{"Mario World (E) [!].sfc", []string{"Europe"}, "", true},
		{"Contra (U) (V1.1) [h1]", []string{"USA"}, "1", false},
		{"F-Zero (JU) (PRG1)", []string{"Japan", "USA"}, "1", false},
		{"Kirby (Japan) (Rev A)", []string{"Japan"}, "1", false},
		{"random_hack_v3", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseTags(tt.in)
			assert.Equal(t, tt.regions, got.Regions)
			assert.Equal(t, tt.revision, got.Revision)
			assert.Equal(t, tt.verified, got.Verified)
		})
	}

	assert.True(t, ParseTags("(U)").SharesRegion(ParseTags("(USA, Europe)")))
	assert.False(t, ParseTags("(J)").SharesRegion(ParseTags("(USA)")))
	assert.Equal(t, "0", ParseTags("x (V1.0)").Rev())
}
