package objectstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryEntry is one recorded state change.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	StateID   string    `json:"state_id"`
	Value     any       `json:"val"`
	Ack       bool      `json:"ack"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores state changes in the state_history table.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new SQLite state history repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordStateChange appends a history entry for a state.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - stateID: Object ID of the state
//   - value: New value
//   - ack: Acknowledgement flag of the write
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *HistoryRepository) RecordStateChange(ctx context.Context, stateID string, value any, ack bool) error {
	if err := ValidateID(stateID); err != nil {
		return err
	}

	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (state_id, value, ack, created_at) VALUES (?, ?, ?, ?)",
		stateID,
		encoded,
		boolToInt(ack),
		time.Now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for a state, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - stateID: Object ID of the state
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HistoryEntry: Entries ordered newest first
//   - error: nil on success, otherwise the underlying query error
func (r *HistoryRepository) GetHistory(ctx context.Context, stateID string, limit int) ([]HistoryEntry, error) {
	if err := ValidateID(stateID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, state_id, value, ack, created_at
		 FROM state_history
		 WHERE state_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		stateID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var value, createdAt string
		var ack int

		if err := rows.Scan(&entry.ID, &entry.StateID, &value, &ack, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		v, err := decodeValue(value)
		if err != nil {
			return nil, err
		}
		entry.Value = v
		entry.Ack = ack != 0

		ts, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = ts

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than olderThan and returns how many
// rows were removed.
func (r *HistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
