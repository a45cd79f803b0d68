package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// openTestDB opens a database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	tmpDir := t.TempDir()
	db, err := Open(Config{
		Path:        filepath.Join(tmpDir, "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
	})

	t.Run("returns path", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestVerify(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Verify(context.Background()); err != nil {
		t.Errorf("Verify() error = %v on a fresh database", err)
	}
}

func TestBackupAndRestore(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "hub.db")
	backupPath := filepath.Join(tmpDir, "hub.db.backup")

	db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE TABLE marks (id INTEGER PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO marks (v) VALUES ('before-backup')"); err != nil {
		t.Fatalf("inserting row: %v", err)
	}

	if err := db.Backup(ctx, backupPath); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	// Mutate after backup, then restore and confirm the mutation is gone.
	if _, err := db.ExecContext(ctx, "INSERT INTO marks (v) VALUES ('after-backup')"); err != nil {
		t.Fatalf("inserting row: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := RestoreFromBackup(dbPath, backupPath); err != nil {
		t.Fatalf("RestoreFromBackup() error = %v", err)
	}

	db, err = Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening after restore: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM marks").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("restored database has %d rows, want 1", count)
	}
}

func TestRestoreFromBackup_MissingBackup(t *testing.T) {
	tmpDir := t.TempDir()
	err := RestoreFromBackup(
		filepath.Join(tmpDir, "hub.db"),
		filepath.Join(tmpDir, "nonexistent.backup"),
	)
	if err == nil {
		t.Error("RestoreFromBackup() should fail when the backup is missing")
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Second close on a closed handle should not panic.
	_ = db.Close() //nolint:errcheck // Intentional double close
}
