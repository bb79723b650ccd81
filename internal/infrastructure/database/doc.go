// Package database provides SQLite connectivity for SensorFlow Core.
//
// SensorFlow persists a small amount of state, currently the dynamic
// broker registrations, so the database layer is deliberately thin:
//   - A single SQLite file opened in WAL mode
//   - Embedded schema migrations applied on startup
//   - A health check for the readiness endpoint
//
// All queries use parameterised statements, and the database file is
// created with owner-only permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
