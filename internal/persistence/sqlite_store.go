package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/orchid/pkg/api"
)

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteInstanceStore struct {
	db *sql.DB
}

// Ensure SQLiteInstanceStore implements InstanceStore.
var _ InstanceStore = (*SQLiteInstanceStore)(nil)

// NewSQLiteInstanceStore initializes the required schema in the given
// database and returns a new SQLiteInstanceStore.
func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s := &SQLiteInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			input BLOB,
			output BLOB,
			custom_status BLOB,
			error TEXT,
			parent_id TEXT NOT NULL DEFAULT '',
			parent_task_id INTEGER NOT NULL DEFAULT 0,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_expires INTEGER NOT NULL DEFAULT 0
		);`,
	)
	return err
}

func (s *SQLiteInstanceStore) SaveInstance(inst *api.OrchestrationInstance) error {
	_, err := s.db.Exec(`
		INSERT INTO instances (id, name, status, input, output, custom_status, error, parent_id, parent_task_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteInstanceStore) UpdateInstance(inst *api.OrchestrationInstance) error {
	res, err := s.db.Exec(`
		UPDATE instances
		SET name = ?, status = ?, input = ?, output = ?, custom_status = ?, error = ?, parent_id = ?, parent_task_id = ?
		WHERE id = ?`,
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

func (s *SQLiteInstanceStore) GetInstance(id string) (*api.OrchestrationInstance, error) {
	row := s.db.QueryRow(`
		SELECT id, name, status, input, output, custom_status, error, parent_id, parent_task_id
		FROM instances
		WHERE id = ?`,
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

func (s *SQLiteInstanceStore) ListInstances(filter InstanceFilter) ([]*api.OrchestrationInstance, error) {
	query := `
		SELECT id, name, status, input, output, custom_status, error, parent_id, parent_task_id
		FROM instances`
	var args []any
	var clauses []string

	if filter.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
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

func scanInstance(scan func(dest ...any) error) (*api.OrchestrationInstance, error) {
	var inst api.OrchestrationInstance
	var statusStr string
	var input, output, customStatus []byte
	var errStr sql.NullString

	if err := scan(&inst.ID, &inst.Name, &statusStr, &input, &output, &customStatus, &errStr, &inst.ParentID, &inst.ParentTaskID); err != nil {
		return nil, err
	}

	inst.Status = api.Status(statusStr)
	inst.Input = input
	inst.Output = output
	inst.CustomStatus = customStatus
	if errStr.Valid {
		inst.Err = errStr.String
	}

	return &inst, nil
}

func (s *SQLiteInstanceStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	expires := time.Now().Add(ttl).UnixNano()

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_owner = ?, lease_expires = ?
		WHERE id = ? AND (lease_owner = '' OR lease_owner = ? OR lease_expires <= ?)`,
		owner, expires, instanceID, owner, now,
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

	// Either the instance does not exist, or someone else holds the lease.
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instances WHERE id = ?`, instanceID).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrInstanceNotFound
	}
	return false, nil
}

func (s *SQLiteInstanceStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	expires := time.Now().Add(ttl).UnixNano()

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_expires = ?
		WHERE id = ? AND lease_owner = ?`,
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

func (s *SQLiteInstanceStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET lease_owner = '', lease_expires = 0
		WHERE id = ? AND lease_owner = ?`,
		instanceID, owner,
	)
	return err
}
