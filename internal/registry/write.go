package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pgden/pgden/internal/instance"
)

// Save upserts the full registry row for an instance. On conflict the
// existing created_at is preserved and everything else is replaced.
//
// Only stopped and running are valid persisted states; a derived crashed
// status is stored as stopped.
func (r *Registry) Save(ctx context.Context, inst *instance.Instance) error {
	settings := inst.Settings
	if settings == nil {
		settings = []instance.Setting{}
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	status := inst.Status
	if status != instance.StatusRunning {
		status = instance.StatusStopped
	}

	now := time.Now().UTC()
	createdAt := inst.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO instances
		(name, port, username, password, dbname, data_dir, version, settings, pid, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			port       = excluded.port,
			username   = excluded.username,
			password   = excluded.password,
			dbname     = excluded.dbname,
			data_dir   = excluded.data_dir,
			version    = excluded.version,
			settings   = excluded.settings,
			pid        = excluded.pid,
			status     = excluded.status,
			updated_at = excluded.updated_at
	`,
		inst.Name,
		inst.Port,
		inst.Username,
		inst.Password,
		inst.Database,
		inst.DataDir,
		inst.Version,
		string(settingsJSON),
		inst.PID,
		string(status),
		createdAt.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err, "instances.data_dir") {
			return fmt.Errorf("data directory %s already belongs to another instance", inst.DataDir)
		}
		return busyAsLocked(inst.Name, fmt.Errorf("save instance: %w", err))
	}

	return nil
}

// SetState updates only the process fields of an instance row.
// Returns ErrNotFound if no row exists.
func (r *Registry) SetState(ctx context.Context, name string, pid int, status instance.Status) error {
	if status != instance.StatusRunning {
		status = instance.StatusStopped
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE instances
		SET pid = ?, status = ?, updated_at = ?
		WHERE name = ?
	`, pid, string(status), time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return busyAsLocked(name, fmt.Errorf("update instance state: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update instance state: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an instance row. Deleting a missing row is a no-op.
func (r *Registry) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE name = ?`, name)
	if err != nil {
		return busyAsLocked(name, fmt.Errorf("delete instance: %w", err))
	}
	return nil
}

// PutInstallation records (or refreshes) a verified engine installation.
func (r *Registry) PutInstallation(ctx context.Context, version, platform, dir string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO installations (version, platform, install_dir, verified_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(version, platform) DO UPDATE SET
			install_dir = excluded.install_dir,
			verified_at = excluded.verified_at
	`, version, platform, dir, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return busyAsLocked("", fmt.Errorf("record installation: %w", err))
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure on
// the given column (as "table.column").
func isUniqueViolation(err error, column string) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(se.Error(), column)
}
