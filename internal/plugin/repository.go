package plugin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for plugin persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// List retrieves all plugins in position order.
	List(ctx context.Context) ([]*Plugin, error)

	// Save upserts a plugin's persisted fields (identity, enabled,
	// config, position).
	Save(ctx context.Context, p *Plugin) error

	// SetEnabled persists the enabled flag.
	// Returns ErrPluginNotFound if the plugin does not exist.
	SetEnabled(ctx context.Context, name string, enabled bool) error

	// Delete removes a plugin by name.
	// Returns ErrPluginNotFound if the plugin does not exist.
	Delete(ctx context.Context, name string) error

	// DeleteAll removes every plugin.
	DeleteAll(ctx context.Context) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all plugins in position order.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Plugin, error) {
	query := `
		SELECT name, path, version, type, enabled, config, position
		FROM plugins
		ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing plugins: %w", err)
	}
	defer rows.Close()

	var plugins []*Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plugins: %w", err)
	}
	return plugins, nil
}

// Save upserts a plugin's persisted fields.
func (r *SQLiteRepository) Save(ctx context.Context, p *Plugin) error {
	config, err := json.Marshal(configOrEmpty(p.Config))
	if err != nil {
		return fmt.Errorf("marshalling config for %q: %w", p.Name, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO plugins (name, path, version, type, enabled, config, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			version = excluded.version,
			type = excluded.type,
			enabled = excluded.enabled,
			config = excluded.config,
			position = excluded.position,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		p.Name, p.Path, p.Version, string(p.Type), p.Enabled, string(config), p.Position, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving plugin %q: %w", p.Name, err)
	}
	return nil
}

// SetEnabled persists the enabled flag.
func (r *SQLiteRepository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`UPDATE plugins SET enabled = ?, updated_at = ? WHERE name = ?`,
		enabled, now, name,
	)
	if err != nil {
		return fmt.Errorf("updating enabled for %q: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update for %q: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return nil
}

// Delete removes a plugin by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM plugins WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting plugin %q: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete for %q: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return nil
}

// DeleteAll removes every plugin.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM plugins`); err != nil {
		return fmt.Errorf("clearing plugins: %w", err)
	}
	return nil
}

func scanPlugin(rows *sql.Rows) (*Plugin, error) {
	var (
		p          Plugin
		typeStr    string
		configJSON string
	)
	if err := rows.Scan(&p.Name, &p.Path, &p.Version, &typeStr, &p.Enabled, &configJSON, &p.Position); err != nil {
		return nil, fmt.Errorf("scanning plugin: %w", err)
	}
	p.Type = Type(typeStr)
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &p.Config); err != nil {
			return nil, fmt.Errorf("unmarshalling config for %q: %w", p.Name, err)
		}
	}
	return &p, nil
}

func configOrEmpty(config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	return config
}

// IsNotFound reports whether err indicates a missing plugin row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPluginNotFound) || errors.Is(err, sql.ErrNoRows)
}
