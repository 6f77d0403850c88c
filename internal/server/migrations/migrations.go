// Package migrations embeds the goose SQL migrations, one directory per
// supported dialect.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Postgres returns the PostgreSQL migration set rooted at its directory.
func Postgres() fs.FS { return sub("postgres") }

// SQLite returns the SQLite migration set rooted at its directory.
func SQLite() fs.FS { return sub("sqlite") }

func sub(dir string) fs.FS {
	f, err := fs.Sub(files, dir)
	if err != nil {
		// the directories are embedded at compile time
		panic(err)
	}
	return f
}
