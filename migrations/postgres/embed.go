// Package migrations embeds SQL migration files.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

// FS contiene las migraciones del token store postgres.
//
//go:embed *.sql
var FS embed.FS

// Up devuelve los nombres de las migraciones *_up.sql en orden ascendente.
func Up() ([]string, error) {
	out, err := list("_up.sql")
	sort.Strings(out)
	return out, err
}

// Down devuelve las *_down.sql en orden descendente (la última primero).
func Down() ([]string, error) {
	out, err := list("_down.sql")
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, err
}

func list(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
