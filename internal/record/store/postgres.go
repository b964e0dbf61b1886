package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"zakat/internal/audit"
	"zakat/internal/record/models"
	id "zakat/pkg/domain"
	"zakat/pkg/platform/fieldcrypt"
	"zakat/pkg/platform/sentinel"
	txcontext "zakat/pkg/platform/tx"
)

//go:embed schema.sql
var Schema string

const (
	uniqueViolation  = "23505"
	defaultTxTimeout = 5 * time.Second
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists records and audit events in PostgreSQL. Record
// state and event bodies are stored as encrypted JSON payloads; the plain
// columns carry only what queries and constraints need.
type PostgresStore struct {
	db     *sql.DB
	cipher fieldcrypt.Cipher
}

// NewPostgres constructs a store. A nil cipher stores plaintext payloads.
func NewPostgres(db *sql.DB, cipher fieldcrypt.Cipher) *PostgresStore {
	if cipher == nil {
		cipher = fieldcrypt.Plaintext{}
	}
	return &PostgresStore{db: db, cipher: cipher}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply record schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Record, events []audit.Event) ([]audit.Event, error) {
	var sealed []audit.Event
	err := s.inTx(ctx, func(q execer) error {
		stored := r.Clone()
		stored.Version = 1
		payload, err := s.encodeRecord(stored)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO nisab_year_records (id, user_id, status, version, created_at, updated_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, stored.ID.String(), stored.UserID.String(), string(stored.Status), stored.Version,
			stored.CreatedAt, stored.UpdatedAt, payload)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("record %s or an open record for user %s exists: %w", r.ID, r.UserID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert record: %w", err)
		}
		sealed, err = s.appendEvents(ctx, q, r.ID, events)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.Version = 1
	return sealed, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	var payload []byte
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT payload FROM nisab_year_records WHERE id = $1
	`, recordID.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return s.decodeRecord(payload)
}

func (s *PostgresStore) FindOpenByUser(ctx context.Context, userID id.UserID) (*models.Record, error) {
	var payload []byte
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT payload FROM nisab_year_records
		WHERE user_id = $1 AND status IN ('DRAFT', 'UNLOCKED')
	`, userID.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open record: %w", err)
	}
	return s.decodeRecord(payload)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, statuses ...models.Status) ([]*models.Record, error) {
	var filter []string
	for _, st := range statuses {
		filter = append(filter, string(st))
	}
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT payload FROM nisab_year_records
		WHERE user_id = $1 AND ($2::text[] IS NULL OR status = ANY($2::text[]))
		ORDER BY created_at DESC, id DESC
	`, userID.String(), pq.Array(filter))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, err := s.decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, r *models.Record, expectedVersion int64, events []audit.Event) ([]audit.Event, error) {
	var sealed []audit.Event
	err := s.inTx(ctx, func(q execer) error {
		stored := r.Clone()
		stored.Version = expectedVersion + 1
		payload, err := s.encodeRecord(stored)
		if err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, `
			UPDATE nisab_year_records
			SET status = $2, version = $3, updated_at = $4, payload = $5
			WHERE id = $1 AND version = $6
		`, stored.ID.String(), string(stored.Status), stored.Version, stored.UpdatedAt, payload, expectedVersion)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("user %s already has an open record: %w", r.UserID, sentinel.ErrConflict)
			}
			return fmt.Errorf("update record: %w", err)
		}
		if err := s.checkVersioned(ctx, q, res, r.ID, expectedVersion); err != nil {
			return err
		}
		sealed, err = s.appendEvents(ctx, q, r.ID, events)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.Version = expectedVersion + 1
	return sealed, nil
}

// Delete removes the record row. Audit events are kept.
func (s *PostgresStore) Delete(ctx context.Context, recordID id.RecordID, expectedVersion int64) error {
	return s.inTx(ctx, func(q execer) error {
		res, err := q.ExecContext(ctx, `
			DELETE FROM nisab_year_records WHERE id = $1 AND version = $2
		`, recordID.String(), expectedVersion)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		return s.checkVersioned(ctx, q, res, recordID, expectedVersion)
	})
}

func (s *PostgresStore) ListEvents(ctx context.Context, recordID id.RecordID) ([]audit.Event, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT payload FROM record_audit_events
		WHERE record_id = $1
		ORDER BY sequence ASC
	`, recordID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	out := []audit.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e, err := s.decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

// appendEvents seals events onto the current tail. Concurrent appends for the
// same record are serialized by the record row lock taken by the enclosing
// write; UNIQUE(record_id, sequence) rejects anything that slips past.
func (s *PostgresStore) appendEvents(ctx context.Context, q execer, recordID id.RecordID, events []audit.Event) ([]audit.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	tail, err := s.tailEvent(ctx, q, recordID)
	if err != nil {
		return nil, err
	}
	sealed, err := sealAll(tail, events)
	if err != nil {
		return nil, err
	}
	for _, e := range sealed {
		payload, err := s.encodeEvent(e)
		if err != nil {
			return nil, err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO record_audit_events
				(id, record_id, user_id, event_type, occurred_at, sequence, prev_hash, hash, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, e.ID.String(), e.RecordID.String(), e.UserID.String(), string(e.Type), e.Timestamp,
			e.Sequence, e.PrevHash, e.Hash, payload)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("audit sequence %d for record %s taken: %w", e.Sequence, recordID, sentinel.ErrConflict)
			}
			return nil, fmt.Errorf("insert audit event: %w", err)
		}
	}
	return sealed, nil
}

func (s *PostgresStore) tailEvent(ctx context.Context, q execer, recordID id.RecordID) (*audit.Event, error) {
	var payload []byte
	err := q.QueryRowContext(ctx, `
		SELECT payload FROM record_audit_events
		WHERE record_id = $1
		ORDER BY sequence DESC
		LIMIT 1
	`, recordID.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}
	e, err := s.decodeEvent(payload)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// checkVersioned distinguishes a missing row from a lost version race when a
// guarded write touched nothing.
func (s *PostgresStore) checkVersioned(ctx context.Context, q execer, res sql.Result, recordID id.RecordID, expected int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM nisab_year_records WHERE id = $1)
	`, recordID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check record existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("record %s is not at version %d: %w", recordID, expected, sentinel.ErrConflict)
}

// RunInTx runs fn in one transaction. Store calls made with the ctx passed to
// fn join it, and nothing they wrote survives an error from fn. A ctx that
// already carries a transaction is joined rather than nested.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(q execer) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) conn(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) encodeRecord(r *models.Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return s.cipher.Encrypt(raw)
}

func (s *PostgresStore) decodeRecord(payload []byte) (*models.Record, error) {
	raw, err := s.cipher.Decrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("decrypt record: %w", err)
	}
	var r models.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) encodeEvent(e audit.Event) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal audit event: %w", err)
	}
	return s.cipher.Encrypt(raw)
}

func (s *PostgresStore) decodeEvent(payload []byte) (audit.Event, error) {
	raw, err := s.cipher.Decrypt(payload)
	if err != nil {
		return audit.Event{}, fmt.Errorf("decrypt audit event: %w", err)
	}
	var e audit.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return audit.Event{}, fmt.Errorf("unmarshal audit event: %w", err)
	}
	return e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
