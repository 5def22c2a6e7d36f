package theme

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGPL = `GIMP Palette
Name: duo
Columns: 2
# a comment
  0   0   0	black
255 255 300	white-ish
bad line here
`

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader(sampleGPL))
	require.NoError(t, err)
	assert.Equal(t, "duo", p.Name)
	assert.Equal(t, []RGB{{0, 0, 0}, {255, 255, 255}}, p.Colors)
}

func TestLoadGPL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duo.gpl")
	require.NoError(t, os.WriteFile(path, []byte(sampleGPL), 0644))

	p, err := LoadGPL(path)
	require.NoError(t, err)
	assert.Len(t, p.Colors, 2)

	_, err = LoadGPL(filepath.Join(t.TempDir(), "missing.gpl"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.gpl")
	require.NoError(t, os.WriteFile(empty, []byte("GIMP Palette\n"), 0644))
	_, err = LoadGPL(empty)
	assert.ErrorContains(t, err, "no colors")
}

func TestLookup(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}}}

	assert.Equal(t, RGB{0, 0, 0}, p.Lookup(-1))
	assert.Equal(t, RGB{200, 100, 50}, p.Lookup(2))
	assert.Equal(t, RGB{100, 50, 25}, p.Lookup(0.5))

	single := &Palette{Colors: []RGB{{1, 2, 3}}}
	assert.Equal(t, RGB{1, 2, 3}, single.Lookup(0.5))
}

func TestThemeDefaults(t *testing.T) {
	th := New(nil)
	assert.Equal(t, "plasma", th.Palette.Name)
	assert.Equal(t, 'X', th.Symbols.StepActive)
	assert.Equal(t, lipgloss.Color("#0d0887"), th.Color(0))
	assert.Equal(t, lipgloss.Color("#f0f921"), th.Success())
}
