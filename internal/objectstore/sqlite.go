package objectstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore implements Store and Browser on the objects and states tables.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store on an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection
//
// Returns:
//   - *SQLiteStore: Store ready for use
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// GetState implements Store.
func (s *SQLiteStore) GetState(ctx context.Context, id string) (*State, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, value, ack, updated_at FROM states WHERE id = ?",
		id,
	)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying state %s: %w", id, err)
	}
	return st, nil
}

// SetObjectNotExists implements Store.
func (s *SQLiteStore) SetObjectNotExists(ctx context.Context, obj Object) (bool, error) {
	if err := validateObject(obj); err != nil {
		return false, err
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = s.now()
	}

	native := obj.Native
	if native == nil {
		native = map[string]string{}
	}
	nativeJSON, err := json.Marshal(native)
	if err != nil {
		return false, fmt.Errorf("marshalling native: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (id, type, name, value_type, readable, writable, native, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		obj.ID,
		string(obj.Type),
		obj.Common.Name,
		obj.Common.ValueType,
		boolToInt(obj.Common.Read),
		boolToInt(obj.Common.Write),
		string(nativeJSON),
		obj.CreatedAt.Format(timestampLayout),
	)
	if err != nil {
		return false, fmt.Errorf("inserting object %s: %w", obj.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// SetState implements Store.
func (s *SQLiteStore) SetState(ctx context.Context, id string, value any, ack bool) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO states (id, value, ack, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     value = excluded.value,
		     ack = excluded.ack,
		     updated_at = excluded.updated_at`,
		id,
		encoded,
		boolToInt(ack),
		s.now().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("writing state %s: %w", id, err)
	}
	return nil
}

// GetObject implements Browser.
func (s *SQLiteStore) GetObject(ctx context.Context, id string) (*Object, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, type, name, value_type, readable, writable, native, created_at FROM objects WHERE id = ?",
		id,
	)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying object %s: %w", id, err)
	}
	return obj, nil
}

// ListObjects implements Browser.
func (s *SQLiteStore) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	query := "SELECT id, type, name, value_type, readable, writable, native, created_at FROM objects"
	where, args := prefixClause(prefix)
	rows, err := s.db.QueryContext(ctx, query+where+" ORDER BY seq", args...)
	if err != nil {
		return nil, fmt.Errorf("querying objects: %w", err)
	}
	defer rows.Close()

	out := make([]Object, 0)
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning object: %w", err)
		}
		out = append(out, *obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating objects: %w", err)
	}
	return out, nil
}

// ListStates implements Browser.
func (s *SQLiteStore) ListStates(ctx context.Context, prefix string) ([]State, error) {
	where, args := prefixClause(prefix)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, value, ack, updated_at FROM states"+where+" ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying states: %w", err)
	}
	defer rows.Close()

	out := make([]State, 0)
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating states: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (*Object, error) {
	var obj Object
	var objType, nativeJSON, createdAt string
	var readable, writable int

	if err := row.Scan(&obj.ID, &objType, &obj.Common.Name, &obj.Common.ValueType,
		&readable, &writable, &nativeJSON, &createdAt); err != nil {
		return nil, err
	}
	obj.Type = ObjectType(objType)
	obj.Common.Read = readable != 0
	obj.Common.Write = writable != 0

	if nativeJSON != "" && nativeJSON != "{}" {
		if err := json.Unmarshal([]byte(nativeJSON), &obj.Native); err != nil {
			return nil, fmt.Errorf("unmarshalling native: %w", err)
		}
	}

	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}
	obj.CreatedAt = ts
	return &obj, nil
}

func scanState(row rowScanner) (*State, error) {
	var st State
	var value, updatedAt string
	var ack int

	if err := row.Scan(&st.ID, &value, &ack, &updatedAt); err != nil {
		return nil, err
	}

	v, err := decodeValue(value)
	if err != nil {
		return nil, err
	}
	st.Value = v
	st.Ack = ack != 0

	ts, err := parseTimestamp(updatedAt)
	if err != nil {
		return nil, err
	}
	st.UpdatedAt = ts
	return &st, nil
}

// prefixClause builds the WHERE clause selecting prefix and its descendants.
func prefixClause(prefix string) (string, []any) {
	if prefix == "" {
		return "", nil
	}
	return ` WHERE id = ? OR id LIKE ? ESCAPE '\'`, []any{prefix, escapeLike(prefix) + ".%"}
}

// escapeLike escapes LIKE metacharacters in a path prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return ts, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
