package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/orchid/pkg/api"
)

// PostgresInstanceStore is an InstanceStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib" or "github.com/lib/pq").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresInstanceStore struct {
	db *sql.DB
}

// Ensure PostgresInstanceStore implements InstanceStore.
var _ InstanceStore = (*PostgresInstanceStore)(nil)

// NewPostgresInstanceStore initializes the required schema in the given
// database and returns a new PostgresInstanceStore.
func NewPostgresInstanceStore(db *sql.DB) (*PostgresInstanceStore, error) {
	s := &PostgresInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			input BYTEA,
			output BYTEA,
			custom_status BYTEA,
			error TEXT,
			parent_id TEXT NOT NULL DEFAULT '',
			parent_task_id INTEGER NOT NULL DEFAULT 0,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_expires BIGINT NOT NULL DEFAULT 0
		);
	`)
	return err
}

func (s *PostgresInstanceStore) SaveInstance(inst *api.OrchestrationInstance) error {
	_, err := s.db.Exec(`
		INSERT INTO instances (id, name, status, input, output, custom_status, error, parent_id, parent_task_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		inst.ID,
		inst.Name,
		string(inst.Status),
		[]byte(inst.Input),
		[]byte(inst.Output),
		[]byte(inst.CustomStatus),
		inst.Err,
		inst.ParentID,
		inst.ParentTaskID,
	)
	return err
}

func (s *PostgresInstanceStore) UpdateInstance(inst *api.OrchestrationInstance) error {
	res, err := s.db.Exec(`
		UPDATE instances
		SET name           = $1,
		    status         = $2,
		    input          = $3,
		    output         = $4,
		    custom_status  = $5,
		    error          = $6,
		    parent_id      = $7,
		    parent_task_id = $8
		WHERE id = $9
	`,
		inst.Name,
		string(inst.Status),
		[]byte(inst.Input),
		[]byte(inst.Output),
		[]byte(inst.CustomStatus),
		inst.Err,
		inst.ParentID,
		inst.ParentTaskID,
		inst.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}

	return nil
}

func (s *PostgresInstanceStore) GetInstance(id string) (*api.OrchestrationInstance, error) {
	row := s.db.QueryRow(`
		SELECT id, name, status, input, output, custom_status, error, parent_id, parent_task_id
		FROM instances
		WHERE id = $1`,
		id,
	)

	inst, err := scanInstance(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *PostgresInstanceStore) ListInstances(filter InstanceFilter) ([]*api.OrchestrationInstance, error) {
	query := `
		SELECT id, name, status, input, output, custom_status, error, parent_id, parent_task_id
		FROM instances`
	var args []any
	var clauses []string

	if filter.Name != "" {
		args = append(args, filter.Name)
		clauses = append(clauses, "name = $1")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		if len(args) == 2 {
			clauses = append(clauses, "status = $2")
		} else {
			clauses = append(clauses, "status = $1")
		}
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.OrchestrationInstance

	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}

func (s *PostgresInstanceStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	expires := time.Now().Add(ttl).UnixNano()

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_owner = $1, lease_expires = $2
		WHERE id = $3 AND (lease_owner = '' OR lease_owner = $1 OR lease_expires <= $4)`,
		owner, expires, instanceID, now,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instances WHERE id = $1`, instanceID).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrInstanceNotFound
	}
	return false, nil
}

func (s *PostgresInstanceStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	expires := time.Now().Add(ttl).UnixNano()

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_expires = $1
		WHERE id = $2 AND lease_owner = $3`,
		expires, instanceID, owner,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *PostgresInstanceStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_owner = '', lease_expires = 0
		WHERE id = $1 AND lease_owner = $2`,
		instanceID, owner,
	)
	return err
}

// PostgresHistoryStore persists history logs in PostgreSQL, one JSON-encoded
// event per row.
type PostgresHistoryStore struct {
	db *sql.DB
}

// Ensure PostgresHistoryStore implements HistoryStore.
var _ HistoryStore = (*PostgresHistoryStore)(nil)

// NewPostgresHistoryStore initializes the history table in the given database
// and returns a new PostgresHistoryStore.
func NewPostgresHistoryStore(db *sql.DB) (*PostgresHistoryStore, error) {
	s := &PostgresHistoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresHistoryStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS history_events (
			seq BIGSERIAL PRIMARY KEY,
			instance_id TEXT NOT NULL,
			event BYTEA NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_events_instance_id ON history_events(instance_id, seq);
	`)
	return err
}

func (s *PostgresHistoryStore) AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := s.insertEvents(ctx, tx, instanceID, events); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *PostgresHistoryStore) ListEvents(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event FROM history_events
		WHERE instance_id = $1
		ORDER BY seq`,
		instanceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return decodeEventRows(rows)
}

func (s *PostgresHistoryStore) ResetHistory(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_events WHERE instance_id = $1`, instanceID); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := s.insertEvents(ctx, tx, instanceID, events); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *PostgresHistoryStore) insertEvents(ctx context.Context, tx *sql.Tx, instanceID string, events []api.HistoryEvent) error {
	for _, ev := range events {
		data, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history_events (instance_id, event) VALUES ($1, $2)`,
			instanceID, data,
		); err != nil {
			return err
		}
	}
	return nil
}
