// Package postgres stores routing rules in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/routing"
	"conversation-router/internal/storage"
)

// Adapter is a routing.RuleStore backed by PostgreSQL.
//
// TryReserve is one conditional UPDATE. Concurrent updates of the same row
// queue on its row lock and re-check the WHERE clause against the committed
// state, so any number of router processes can share the table.
type Adapter struct {
	pool   *pgxpool.Pool
	config *Config
}

func NewAdapter(ctx context.Context, config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	return newAdapterFromPoolConfig(ctx, poolConfig, config)
}

// NewAdapterFromDSN connects using a full connection string
func NewAdapterFromDSN(ctx context.Context, dsn string) (*Adapter, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL DSN: %w", err)
	}
	return newAdapterFromPoolConfig(ctx, poolConfig, nil)
}

func newAdapterFromPoolConfig(ctx context.Context, poolConfig *pgxpool.Config, config *Config) (*Adapter, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		pool:   pool,
		config: config,
	}

	if err := adapter.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS routing_rules (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			rule_type TEXT NOT NULL CHECK (rule_type IN ('allocate_next_n', 'transfer_ongoing')),
			target TEXT NOT NULL CHECK (target IN ('n1ago', 'human', 'bot')),
			allocate_count BIGINT CHECK (allocate_count IS NULL OR allocate_count > 0),
			allocated_count BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			auth_filter TEXT,
			match_text TEXT,
			created_by TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			expires_at BIGINT,
			CHECK (allocate_count IS NULL OR allocated_count <= allocate_count)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_rules_active ON routing_rules (is_active, rule_type, seq)`,
	}

	for _, query := range queries {
		if _, err := a.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

func (a *Adapter) Create(ctx context.Context, rule *routing.Rule) (*routing.Rule, error) {
	rec := storage.NewRuleRecord(rule)
	_, err := a.pool.Exec(ctx, `
		INSERT INTO routing_rules (id, rule_type, target, allocate_count, allocated_count, is_active,
			auth_filter, match_text, created_by, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.RuleType, rec.Target, rec.AllocateCount, rec.AllocatedCount, rec.IsActive,
		rec.AuthFilter, rec.MatchText, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt, rec.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return nil, errors.ValidationErrorf("routing rule %s already exists", rule.ID)
	}
	if err != nil {
		return nil, errors.InternalError("failed to insert routing rule", err)
	}
	return rule.Clone(), nil
}

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (a *Adapter) Get(ctx context.Context, id string) (*routing.Rule, error) {
	var rec storage.RuleRecord
	err := a.pool.QueryRow(ctx, `SELECT `+storage.RuleColumns+` FROM routing_rules WHERE id = $1`, id).Scan(rec.Dest()...)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, routing.NotFound(id)
	}
	if err != nil {
		return nil, errors.InternalError("failed to load routing rule", err)
	}
	return rec.Rule()
}

func (a *Adapter) List(ctx context.Context, filter routing.ListFilter) ([]*routing.Rule, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	if filter.RuleType != "" {
		args = append(args, string(filter.RuleType))
		where = append(where, fmt.Sprintf("rule_type = $%d", len(args)))
	}

	query := `SELECT ` + storage.RuleColumns + ` FROM routing_rules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.InternalError("failed to list routing rules", err)
	}
	defer rows.Close()

	rules := make([]*routing.Rule, 0)
	for rows.Next() {
		var rec storage.RuleRecord
		if err := rows.Scan(rec.Dest()...); err != nil {
			return nil, errors.InternalError("failed to scan routing rule", err)
		}
		rule, err := rec.Rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to list routing rules", err)
	}
	return rules, nil
}

func (a *Adapter) Deactivate(ctx context.Context, id string) (*routing.Rule, error) {
	if err := a.deactivate(ctx, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	return a.Get(ctx, id)
}

func (a *Adapter) deactivate(ctx context.Context, id string, now time.Time) error {
	_, err := a.pool.Exec(ctx,
		`UPDATE routing_rules SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND is_active`,
		storage.ToMillis(now), id)
	if err != nil {
		return errors.InternalError("failed to deactivate routing rule", err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, id string) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return errors.InternalError("failed to delete routing rule", err)
	}
	if tag.RowsAffected() == 0 {
		return routing.NotFound(id)
	}
	return nil
}

func (a *Adapter) TryReserve(ctx context.Context, id string, now time.Time) (*routing.Reservation, error) {
	nowMS := storage.ToMillis(now)

	var rec storage.RuleRecord
	err := a.pool.QueryRow(ctx, `
		UPDATE routing_rules
		SET allocated_count = allocated_count + 1,
			is_active = (allocate_count IS NULL OR allocated_count + 1 < allocate_count),
			updated_at = $1
		WHERE id = $2
			AND is_active
			AND (allocate_count IS NULL OR allocated_count < allocate_count)
			AND (expires_at IS NULL OR expires_at > $1)
		RETURNING `+storage.RuleColumns,
		nowMS, id,
	).Scan(rec.Dest()...)

	switch {
	case err == nil:
		rule, err := rec.Rule()
		if err != nil {
			return nil, err
		}
		return &routing.Reservation{Status: routing.Reserved, Rule: rule, Exhausted: rec.Exhausted()}, nil
	case !stderrors.Is(err, pgx.ErrNoRows):
		return nil, errors.InternalError("failed to reserve routing rule", err)
	}

	current, err := a.Get(ctx, id)
	if err != nil && !errors.IsType(err, errors.ErrTypeNotFound) {
		return nil, err
	}

	status, deactivate := routing.ClassifyMiss(current, now)
	if deactivate {
		if err := a.deactivate(ctx, id, now); err != nil {
			return nil, err
		}
	}
	return &routing.Reservation{Status: status}, nil
}

func (a *Adapter) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := a.pool.Exec(ctx, `
		UPDATE routing_rules SET is_active = FALSE, updated_at = $1
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1`,
		storage.ToMillis(now))
	if err != nil {
		return 0, errors.InternalError("failed to deactivate expired routing rules", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ routing.RuleStore = (*Adapter)(nil)
