package themes

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BundledThemes(t *testing.T) {
	r := NewRegistry(afero.NewMemMapFs(), "")

	names := r.List()
	assert.Contains(t, names, "dracula")
	assert.Contains(t, names, "nord")

	nord, err := r.Get("nord")
	require.NoError(t, err)
	assert.Equal(t, "Nord", nord.Meta.Name)

	def, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "Dracula", def.Meta.Name)

	_, err = r.Get("missing")
	assert.Error(t, err)
}

func TestRegistry_UserOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/themes/nord.toml", []byte(`
[meta]
name = "My Nord"

[colors]
purple = "#000000"
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/themes/mono.toml", []byte("[meta]\nname = \"Mono\"\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/themes/README.md", []byte("notes"), 0o644))

	r := NewRegistry(fs, "/themes")

	nord, err := r.Get("nord")
	require.NoError(t, err)
	assert.Equal(t, "My Nord", nord.Meta.Name)
	assert.Equal(t, "#000000", nord.Colors.Purple)
	// keys the file omits keep the defaults
	assert.Equal(t, Default().Semantic.Border, nord.Semantic.Border)

	names := r.List()
	assert.Contains(t, names, "mono")
	assert.NotContains(t, names, "README")
	assert.Equal(t, 1, countOf(names, "nord"))
}

func TestRegistry_BadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/t/broken.toml", []byte("[meta"), 0o644))

	_, err := NewRegistry(fs, "/t").Get("broken")
	assert.Error(t, err)
}

func TestStyles_SenderColorIsStable(t *testing.T) {
	s := Default().BuildStyles()

	a := s.Sender("u1").GetForeground()
	assert.Equal(t, a, s.Sender("u1").GetForeground())

	// not every id can collide with u1
	distinct := false
	for _, id := range []string{"u2", "u3", "u4", "u5", "u6", "u7"} {
		if s.Sender(id).GetForeground() != a {
			distinct = true
		}
	}
	assert.True(t, distinct)
}

func countOf(names []string, name string) int {
	n := 0
	for _, v := range names {
		if v == name {
			n++
		}
	}
	return n
}
