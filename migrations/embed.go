// Package migrations embeds the SQL migration files into the binary,
// so SensorFlow Core can migrate its schema without the files being
// present on the filesystem.
package migrations

import (
	"embed"

	"github.com/sensorflow/sensorflow-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files sit at the root of the embedded FS
}
