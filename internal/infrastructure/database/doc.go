// Package database provides SQLite database connectivity for Gray Logic Hub.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded in the binary
//   - Integrity verification, backup (VACUUM INTO) and restore
//   - Health checks and lifecycle management
//
// The database backs the hub's persisted state: the plugin registry and the
// namespaced key-value storage contexts (see internal/storage). Transient
// runtime state (loaded/started flags, device records) is never persisted.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Storage.Path,
//	    WALMode:     cfg.Storage.WALMode,
//	    BusyTimeout: cfg.Storage.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// # Corruption Handling
//
// Verify runs PRAGMA integrity_check at startup. On failure the caller
// restores from the last backup via RestoreFromBackup (file-level copy,
// database closed) and reopens; when restore is disabled the corruption
// is fatal to the run.
package database
