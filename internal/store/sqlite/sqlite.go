package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/store"
	"github.com/nulzo/capability-router/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &SqliteRepository{
		db:       r.db,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		// attempt rollback, but prioritize original error
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) Providers() store.ProviderRepository {
	return &providerRepo{db: r.executor}
}

func (r *SqliteRepository) Policies() store.PolicyRepository {
	return &policyRepo{db: r.executor}
}

func (r *SqliteRepository) Attempts() store.AttemptRepository {
	return &attemptRepo{db: r.executor}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type providerRepo struct {
	db DB
}

func (r *providerRepo) List(ctx context.Context) ([]model.Provider, error) {
	var providers []model.Provider
	err := r.db.SelectContext(ctx, &providers, `SELECT * FROM providers ORDER BY position, created_at`)
	return providers, err
}

func (r *providerRepo) Get(ctx context.Context, id string) (*model.Provider, error) {
	var p model.Provider
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM providers WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *providerRepo) Upsert(ctx context.Context, p *model.Provider) error {
	query := `
	INSERT INTO providers (
		id, provider_key, display_name, protocol_type, base_url, auth_type,
		credential_enc, org_id, extra_json, is_enabled, position, created_at, updated_at
	) VALUES (
		:id, :provider_key, :display_name, :protocol_type, :base_url, :auth_type,
		:credential_enc, :org_id, :extra_json, :is_enabled, :position, :created_at, :updated_at
	)
	ON CONFLICT(id) DO UPDATE SET
		provider_key = excluded.provider_key,
		display_name = excluded.display_name,
		protocol_type = excluded.protocol_type,
		base_url = excluded.base_url,
		auth_type = excluded.auth_type,
		credential_enc = excluded.credential_enc,
		org_id = excluded.org_id,
		extra_json = excluded.extra_json,
		is_enabled = excluded.is_enabled,
		position = excluded.position,
		updated_at = excluded.updated_at`
	_, err := r.db.NamedExecContext(ctx, query, p)
	return err
}

func (r *providerRepo) Delete(ctx context.Context, id string) error {
	return mustAffect(r.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id))
}

type policyRepo struct {
	db DB
}

func (r *policyRepo) List(ctx context.Context) ([]model.Policy, error) {
	var policies []model.Policy
	err := r.db.SelectContext(ctx, &policies, `SELECT * FROM route_policies ORDER BY capability`)
	return policies, err
}

func (r *policyRepo) Get(ctx context.Context, capability string) (*model.Policy, error) {
	var p model.Policy
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM route_policies WHERE capability = ?`, capability); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *policyRepo) Upsert(ctx context.Context, p *model.Policy) error {
	query := `
	INSERT INTO route_policies (
		capability, primary_provider_id, primary_model, fallback_json,
		timeout_ms, retry_count, is_enabled, version, updated_at
	) VALUES (
		:capability, :primary_provider_id, :primary_model, :fallback_json,
		:timeout_ms, :retry_count, :is_enabled, :version, :updated_at
	)
	ON CONFLICT(capability) DO UPDATE SET
		primary_provider_id = excluded.primary_provider_id,
		primary_model = excluded.primary_model,
		fallback_json = excluded.fallback_json,
		timeout_ms = excluded.timeout_ms,
		retry_count = excluded.retry_count,
		is_enabled = excluded.is_enabled,
		version = excluded.version,
		updated_at = excluded.updated_at`
	_, err := r.db.NamedExecContext(ctx, query, p)
	return err
}

func (r *policyRepo) Delete(ctx context.Context, capability string) error {
	return mustAffect(r.db.ExecContext(ctx, `DELETE FROM route_policies WHERE capability = ?`, capability))
}

type attemptRepo struct {
	db DB
}

func (r *attemptRepo) Insert(ctx context.Context, a *model.Attempt) error {
	query := `
	INSERT INTO attempt_logs (
		session_id, capability, protocol_type, provider_id, model_name,
		attempt_index, retry_index, success, error_kind, error_message,
		latency_ms, created_at
	) VALUES (
		:session_id, :capability, :protocol_type, :provider_id, :model_name,
		:attempt_index, :retry_index, :success, :error_kind, :error_message,
		:latency_ms, :created_at
	)`
	res, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (r *attemptRepo) Query(ctx context.Context, f domain.AttemptFilter) ([]model.Attempt, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Capability != "" {
		where = append(where, "capability = ?")
		args = append(args, string(f.Capability))
	}
	if f.Success != nil {
		where = append(where, "success = ?")
		args = append(args, *f.Success)
	}
	if f.ErrorKind != "" {
		where = append(where, "error_kind = ?")
		args = append(args, string(f.ErrorKind))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.Until.UTC())
	}

	query := `SELECT * FROM attempt_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}

	var rows []model.Attempt
	err := r.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

func (r *attemptRepo) Stats(ctx context.Context, since time.Time, capability string) ([]model.AttemptStat, error) {
	query := `
	SELECT capability, success, COALESCE(error_kind, '') AS error_kind, COUNT(*) AS count
	FROM attempt_logs
	WHERE created_at >= ?`
	args := []interface{}{since.UTC()}
	if capability != "" {
		query += " AND capability = ?"
		args = append(args, capability)
	}
	query += `
	GROUP BY capability, success, COALESCE(error_kind, '')
	ORDER BY capability, success DESC, count DESC`

	var stats []model.AttemptStat
	err := r.db.SelectContext(ctx, &stats, query, args...)
	return stats, err
}
