package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/server/storage"
)

// GetProperty retrieves the merged state of a property
// Returns ErrPropertyNotFound if nothing was stored yet
func (s *Storage) GetProperty(ctx context.Context, id models.DocumentID) (*models.PropertyState, error) {
	query := `
		SELECT id, user_id, state, revision, updated_at
		FROM properties
		WHERE id = ?
	`

	state := &models.PropertyState{}
	var propertyID string
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, query, string(id)).Scan(
		&propertyID,
		&state.UserID,
		&state.State,
		&state.Revision,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrPropertyNotFound
		}
		return nil, fmt.Errorf("failed to get property: %w", err)
	}

	state.ID = models.DocumentID(propertyID)
	state.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return state, nil
}

// SaveProperty stores state with optimistic concurrency on revision.
// Revision 1 creates the property, any other revision replaces Revision-1.
func (s *Storage) SaveProperty(ctx context.Context, state *models.PropertyState) error {
	if state.Revision < 1 {
		return fmt.Errorf("invalid revision %d", state.Revision)
	}

	var (
		result sql.Result
		err    error
	)

	if state.Revision == 1 {
		// Вставка не перезаписывает существующую строку
		query := `
			INSERT INTO properties (id, user_id, state, revision, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`
		result, err = s.db.ExecContext(ctx, query,
			string(state.ID),
			state.UserID,
			state.State,
			state.Revision,
			state.UpdatedAt.UnixMilli(),
		)
	} else {
		query := `
			UPDATE properties
			SET user_id = ?, state = ?, revision = ?, updated_at = ?
			WHERE id = ? AND revision = ?
		`
		result, err = s.db.ExecContext(ctx, query,
			state.UserID,
			state.State,
			state.Revision,
			state.UpdatedAt.UnixMilli(),
			string(state.ID),
			state.Revision-1,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to save property: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrRevisionConflict
	}

	return nil
}
