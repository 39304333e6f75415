// Package database provides SQLite connectivity for Verdant Core.
//
// This package manages:
//   - Opening the database with WAL mode and busy-timeout pragmas
//   - Bootstrap schema application (idempotent)
//   - Health checks and lifecycle management
//
// SQLite is used as the single durable store: structured device records
// plus an opaque key/blob table (kv_store) consumed by the userconfig
// package for settings, stats, and per-user configuration aggregates.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/verdant.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
