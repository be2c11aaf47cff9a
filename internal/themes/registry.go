package themes

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

//go:embed themes/*.toml
var bundled embed.FS

// Registry resolves theme names. A file in the user directory overrides a
// bundled theme of the same name.
type Registry struct {
	fs  afero.Fs
	dir string
}

// NewRegistry creates a registry over dir on fs. An empty dir uses only the
// bundled themes.
func NewRegistry(fs afero.Fs, dir string) *Registry {
	return &Registry{fs: fs, dir: dir}
}

// Get loads a theme by name. Unknown names are an error, except "dracula"
// which always resolves.
func (r *Registry) Get(name string) (*Theme, error) {
	if name == "" {
		name = "dracula"
	}

	if r.dir != "" {
		data, err := afero.ReadFile(r.fs, filepath.Join(r.dir, name+".toml"))
		if err == nil {
			return parse(name, data)
		}
	}

	data, err := bundled.ReadFile("themes/" + name + ".toml")
	if err == nil {
		return parse(name, data)
	}

	if name == "dracula" {
		return Default(), nil
	}
	return nil, fmt.Errorf("theme %q not found", name)
}

// List returns bundled theme names followed by user themes
func (r *Registry) List() []string {
	var names []string

	entries, _ := fs.ReadDir(bundled, "themes")
	for _, e := range entries {
		names = append(names, themeName(e.Name()))
	}

	if r.dir != "" {
		if infos, err := afero.ReadDir(r.fs, r.dir); err == nil {
			for _, info := range infos {
				if !info.IsDir() {
					names = append(names, themeName(info.Name()))
				}
			}
		}
	}

	return lo.Uniq(lo.Compact(names))
}

// themeName returns the slug of a .toml file name, or "" for other files
func themeName(file string) string {
	if !strings.HasSuffix(file, ".toml") {
		return ""
	}
	return strings.TrimSuffix(file, ".toml")
}

// parse decodes a theme over the defaults so a partial file still renders
func parse(name string, data []byte) (*Theme, error) {
	t := Default()
	if err := toml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse theme %q: %w", name, err)
	}
	return t, nil
}
