package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/id"
	"github.com/folioapp/folio-server/internal/store"
)

// instanceColumns is the ordered list of columns selected in instance queries.
// Must match the scan order in scanInstance.
const instanceColumns = `id, name, version, local_url, remote_url, has_root_user, created_at, updated_at`

func scanInstance(scanner interface{ Scan(dest ...any) error }) (*domain.Instance, error) {
	var inst domain.Instance

	var (
		localURL    sql.NullString
		remoteURL   sql.NullString
		hasRootUser int
		createdAt   string
		updatedAt   string
	)

	err := scanner.Scan(
		&inst.ID,
		&inst.Name,
		&inst.Version,
		&localURL,
		&remoteURL,
		&hasRootUser,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	inst.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	if localURL.Valid {
		inst.LocalUrl = localURL.String
	}
	if remoteURL.Valid {
		inst.RemoteUrl = remoteURL.String
	}
	inst.HasRootUser = hasRootUser != 0

	return &inst, nil
}

// GetInstance retrieves the singleton instance row.
// Returns store.ErrNotFound if the server has never been initialized.
func (s *Store) GetInstance(ctx context.Context) (*domain.Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instance LIMIT 1`)

	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// InitializeInstance returns the existing instance row, creating it on
// first startup. The generated row starts without a root user; setup
// flips has_root_user when the first account is created.
func (s *Store) InitializeInstance(ctx context.Context, name, version string) (*domain.Instance, error) {
	inst, err := s.GetInstance(ctx)
	if err == nil {
		// Keep the stored version current across upgrades.
		if inst.Version != version {
			inst.Version = version
			inst.UpdatedAt = time.Now()
			if err := s.UpdateInstance(ctx, inst); err != nil {
				return nil, err
			}
		}
		return inst, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	now := time.Now()
	inst = &domain.Instance{
		ID:        id.MustGenerate("srv"),
		Name:      name,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO instance (
			id, name, version, local_url, remote_url, has_root_user, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.Name,
		inst.Version,
		nullString(inst.LocalUrl),
		nullString(inst.RemoteUrl),
		boolToInt(inst.HasRootUser),
		formatTime(inst.CreatedAt),
		formatTime(inst.UpdatedAt),
	)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// UpdateInstance performs a full row update on the instance.
// Returns store.ErrNotFound if the instance row does not exist.
func (s *Store) UpdateInstance(ctx context.Context, inst *domain.Instance) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE instance SET
			name = ?,
			version = ?,
			local_url = ?,
			remote_url = ?,
			has_root_user = ?,
			updated_at = ?
		WHERE id = ?`,
		inst.Name,
		inst.Version,
		nullString(inst.LocalUrl),
		nullString(inst.RemoteUrl),
		boolToInt(inst.HasRootUser),
		formatTime(inst.UpdatedAt),
		inst.ID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
