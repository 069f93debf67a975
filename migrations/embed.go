// Package migrations embeds the controller's SQL schema scripts.
package migrations

import (
	"embed"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/database"
)

//go:embed *.sql
var scripts embed.FS

func init() {
	database.RegisterMigrations(scripts)
}
