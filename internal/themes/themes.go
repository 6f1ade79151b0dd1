// internal/themes/themes.go
//
// Theme and style catalog for scene generation and the asset toolkit.
//
// Loading (Load):
//  1. If a path is given, read that YAML file.
//  2. Otherwise fall back to the embedded assets/themes.yaml.
//
// File shape:
//
//	themes: [ "old music room", ... ]
//	styles: [ "Fantasy", "Pixel Art", ... ]
//
// Entries are trimmed; blanks and duplicates are dropped. Both lists must end
// up non-empty.

package themes

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/escaperoom/assets"
)

// ErrEmptyCatalog is returned when a catalog has no themes or no styles.
var ErrEmptyCatalog = errors.New("themes: catalog is empty")

// Catalog is an immutable list of scene themes and art styles.
type Catalog struct {
	Themes []string `yaml:"themes"`
	Styles []string `yaml:"styles"`
}

// Load reads the catalog from path, or the embedded default when path is "".
func Load(path string) (*Catalog, error) {
	var (
		raw []byte
		err error
	)
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = assets.ThemesYAML()
	}
	if err != nil {
		return nil, fmt.Errorf("read themes: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and normalizes a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse themes: %w", err)
	}
	c.Themes = normalize(c.Themes)
	c.Styles = normalize(c.Styles)
	if len(c.Themes) == 0 || len(c.Styles) == 0 {
		return nil, ErrEmptyCatalog
	}
	return &c, nil
}

// Random returns a uniformly chosen theme.
func (c *Catalog) Random() string {
	return c.Themes[rand.IntN(len(c.Themes))]
}

// ForIndex returns a theme for any non-negative index (wraps around).
func (c *Catalog) ForIndex(i uint64) string {
	return c.Themes[i%uint64(len(c.Themes))]
}

// Style resolves a style name case-insensitively; "" picks the first style.
func (c *Catalog) Style(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return c.Styles[0], true
	}
	for _, s := range c.Styles {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

// Stats returns counts of loaded entries: (themes, styles).
func (c *Catalog) Stats() (themeCount int, styleCount int) {
	return len(c.Themes), len(c.Styles)
}

func normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
