// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var embeddedFiles embed.FS

type File struct {
	Name string
	SQL  string
}

// Ordered returns the migrations of one dialect sorted by file name.
func Ordered(dialect string) ([]File, error) {
	if dialect != Postgres && dialect != SQLite {
		return nil, fmt.Errorf("unknown migration dialect %q", dialect)
	}

	entries, err := fs.ReadDir(embeddedFiles, dialect)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		body, err := embeddedFiles.ReadFile(path.Join(dialect, entry.Name()))
		if err != nil {
			return nil, err
		}

		files = append(files, File{
			Name: entry.Name(),
			SQL:  string(body),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	return files, nil
}
