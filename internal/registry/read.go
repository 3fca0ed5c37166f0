package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgden/pgden/internal/instance"
)

// ErrNotFound is returned when a requested instance has no registry row.
var ErrNotFound = errors.New("instance not found")

const instanceColumns = "name, port, username, password, dbname, data_dir, version, settings, pid, status, created_at, updated_at"

// Get retrieves a single instance by canonical name.
// Returns ErrNotFound if no row exists.
func (r *Registry) Get(ctx context.Context, name string) (*instance.Instance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM instances
		WHERE name = ?
	`, name)

	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, busyAsLocked(name, fmt.Errorf("get instance: %w", err))
	}
	return inst, nil
}

// List returns all instances ordered by name.
// Returns an empty slice (not nil) when the registry is empty.
func (r *Registry) List(ctx context.Context) ([]*instance.Instance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+instanceColumns+`
		FROM instances
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, busyAsLocked("", fmt.Errorf("list instances: %w", err))
	}
	defer rows.Close()

	instances := []*instance.Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("list instances: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}

	return instances, nil
}

// Installation returns the verified installation directory for a version on
// a platform. ok is false when no installation has been recorded.
func (r *Registry) Installation(ctx context.Context, version, platform string) (dir string, ok bool, err error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT install_dir
		FROM installations
		WHERE version = ? AND platform = ?
	`, version, platform)

	err = row.Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, busyAsLocked("", fmt.Errorf("get installation: %w", err))
	}
	return dir, true, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(s scanner) (*instance.Instance, error) {
	var (
		inst         instance.Instance
		settingsJSON string
		status       string
		createdAt    string
		updatedAt    string
	)
	err := s.Scan(
		&inst.Name,
		&inst.Port,
		&inst.Username,
		&inst.Password,
		&inst.Database,
		&inst.DataDir,
		&inst.Version,
		&settingsJSON,
		&inst.PID,
		&status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(settingsJSON), &inst.Settings); err != nil {
		return nil, fmt.Errorf("decode settings for %q: %w", inst.Name, err)
	}
	inst.Status = instance.Status(status)

	if inst.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at for %q: %w", inst.Name, err)
	}
	if inst.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at for %q: %w", inst.Name, err)
	}

	return &inst, nil
}
