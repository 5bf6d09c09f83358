// Package migrations embeds the journal schema into the binary and
// registers it with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.Migrations = migrationsFS
}
