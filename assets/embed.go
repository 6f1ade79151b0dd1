package assets

import (
	"embed"
	"io/fs"
)

//go:embed themes.yaml sql/*.sql
var FS embed.FS

// ThemesYAML returns the built-in theme and style catalog.
func ThemesYAML() ([]byte, error) {
	return FS.ReadFile("themes.yaml")
}

// Migrations exposes the SQL migrations rooted at their own directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(FS, "sql")
	if err != nil {
		// "sql" is embedded above; Sub only fails on an invalid path.
		panic(err)
	}
	return sub
}
