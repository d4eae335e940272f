// Package migrations embeds the SQL schema migrations, one directory per
// database backend. File names follow golang-migrate's
// {version}_{title}.{up|down}.sql convention.
package migrations

import "embed"

// FS holds the postgres/ and sqlite/ migration directories.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
