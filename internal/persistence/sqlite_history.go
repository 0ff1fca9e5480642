package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/petrijr/orchid/pkg/api"
)

// SQLiteHistoryStore persists history logs in SQLite, one JSON-encoded event
// per row, ordered by an auto-incrementing sequence number.
type SQLiteHistoryStore struct {
	db *sql.DB
}

// Ensure SQLiteHistoryStore implements HistoryStore.
var _ HistoryStore = (*SQLiteHistoryStore)(nil)

// NewSQLiteHistoryStore initializes the history table in the given database
// and returns a new SQLiteHistoryStore.
func NewSQLiteHistoryStore(db *sql.DB) (*SQLiteHistoryStore, error) {
	s := &SQLiteHistoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteHistoryStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS history_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			instance_id TEXT NOT NULL,
			event BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_events_instance_id ON history_events(instance_id, seq);
	`)
	return err
}

func (s *SQLiteHistoryStore) AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := insertEvents(ctx, tx, instanceID, events); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *SQLiteHistoryStore) ListEvents(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event FROM history_events
		WHERE instance_id = ?
		ORDER BY seq`,
		instanceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return decodeEventRows(rows)
}

func (s *SQLiteHistoryStore) ResetHistory(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_events WHERE instance_id = ?`, instanceID); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := insertEvents(ctx, tx, instanceID, events); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func insertEvents(ctx context.Context, tx *sql.Tx, instanceID string, events []api.HistoryEvent) error {
	for _, ev := range events {
		data, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history_events (instance_id, event) VALUES (?, ?)`,
			instanceID, data,
		); err != nil {
			return err
		}
	}
	return nil
}

func encodeEvent(ev api.HistoryEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode history event: %w", err)
	}
	return data, nil
}

func decodeEventRows(rows *sql.Rows) ([]api.HistoryEvent, error) {
	var events []api.HistoryEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev api.HistoryEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode history event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
