package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/docsync/internal/models"
)

// AppendMessage stores msg and returns its sequence number
func (s *Storage) AppendMessage(ctx context.Context, msg *models.RelayMessage) (int64, error) {
	query := `
		INSERT INTO messages (origin, payload, created_at)
		VALUES (?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, msg.Origin, msg.Payload, msg.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message seq: %w", err)
	}

	msg.Seq = seq
	return seq, nil
}

// MessagesSince returns up to limit messages newer than since, oldest first
func (s *Storage) MessagesSince(ctx context.Context, since int64, exclude string, limit int) ([]*models.RelayMessage, error) {
	query := `
		SELECT seq, origin, payload, created_at
		FROM messages
		WHERE seq > ? AND (? = '' OR origin != ?)
		ORDER BY seq ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, since, exclude, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.RelayMessage, 0)
	for rows.Next() {
		msg := &models.RelayMessage{}
		var createdAt int64
		if err := rows.Scan(&msg.Seq, &msg.Origin, &msg.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return messages, nil
}

// LatestSeq returns the last issued sequence number.
// AUTOINCREMENT never reuses seq, so the value survives PruneMessages.
func (s *Storage) LatestSeq(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE((SELECT seq FROM sqlite_sequence WHERE name = 'messages'), 0)`

	var seq int64
	err := s.db.QueryRowContext(ctx, query).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest seq: %w", err)
	}
	return seq, nil
}

// PruneMessages deletes messages created before the given time.
// Returns the number of deleted messages.
func (s *Storage) PruneMessages(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune messages: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}
