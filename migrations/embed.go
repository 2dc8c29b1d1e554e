// Package migrations embeds the SQL schema so the binary can migrate the
// archive database without the .sql files on disk.
//
// Import it for its side effect:
//
//	import _ "github.com/nerrad567/weatherstation-core/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/weatherstation-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
