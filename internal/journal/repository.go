package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Repository stores and lists journal entries.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	Recent(ctx context.Context, filter Filter) ([]Entry, error)
}

// SQLiteRepository keeps the journal in the activity table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts entry and sets its ID. RecordedAt is set to now when zero.
func (r *SQLiteRepository) Record(ctx context.Context, entry *Entry) error {
	switch entry.Kind {
	case KindStatus, KindDelivery, KindPublish:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, entry.Kind)
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO activity (recorded_at, kind, topic, detail, count, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		string(entry.Kind), entry.Topic, entry.Detail, entry.Count, entry.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading journal entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// Recent returns entries matching filter, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, filter.Topic)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, recorded_at, kind, topic, detail, count, error FROM activity %s ORDER BY id DESC LIMIT ?",
		where,
	)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind, recordedAt string
		if err := rows.Scan(&e.ID, &recordedAt, &kind, &e.Topic, &e.Detail, &e.Count, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Kind = Kind(kind)

		t, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", recordedAt, err)
		}
		e.RecordedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}
