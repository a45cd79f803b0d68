// Package storage provides persisted key-value contexts for Gray Logic Hub.
//
// The hub partitions its persisted state into namespaced contexts: one per
// registered plugin plus one for the orchestrator itself. This guarantees
// that no two components ever write the same key. Each context offers
// Get/Set/Remove/Keys/Clear with JSON-encoded values, backed by the
// kv_store table in SQLite.
//
// # Corruption and Backup
//
// NewStore verifies the backing database and returns ErrCorrupted when the
// integrity check fails; the caller (cmd/grayhub) restores the database from
// the sidecar backup when restore is enabled, or treats the corruption as
// fatal. Backup writes the sidecar snapshot; Flush checkpoints the WAL
// during cleanup.
//
// # Usage
//
//	store, err := storage.NewStore(ctx, db, storage.Options{
//	    BackupPath: cfg.Storage.BackupPathOrDefault(),
//	})
//	hubCtx, _ := store.Context("hub")
//	_ = hubCtx.Set(ctx, "bridge_mode", "childbridge")
package storage
