// Package sqlite stores routing rules in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/routing"
	"conversation-router/internal/storage"
)

// Adapter is a routing.RuleStore backed by SQLite.
//
// The pool is limited to one connection, so statements from this process
// never interleave. Reservations are a single conditional UPDATE, which also
// keeps several processes sharing the file within each rule's cap.
type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(ctx context.Context, config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
	}

	if err := adapter.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS routing_rules (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			rule_type TEXT NOT NULL CHECK (rule_type IN ('allocate_next_n', 'transfer_ongoing')),
			target TEXT NOT NULL CHECK (target IN ('n1ago', 'human', 'bot')),
			allocate_count INTEGER CHECK (allocate_count IS NULL OR allocate_count > 0),
			allocated_count INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			auth_filter TEXT,
			match_text TEXT,
			created_by TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER,
			CHECK (allocate_count IS NULL OR allocated_count <= allocate_count)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_rules_active ON routing_rules (is_active, rule_type, seq)`,
	}

	for _, query := range queries {
		if _, err := a.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

func (a *Adapter) Create(ctx context.Context, rule *routing.Rule) (*routing.Rule, error) {
	rec := storage.NewRuleRecord(rule)
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO routing_rules (id, rule_type, target, allocate_count, allocated_count, is_active,
			auth_filter, match_text, created_by, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !stderrors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (a *Adapter) Get(ctx context.Context, id string) (*routing.Rule, error) {
	var rec storage.RuleRecord
	err := a.db.QueryRowContext(ctx, `SELECT `+storage.RuleColumns+` FROM routing_rules WHERE id = ?`, id).Scan(rec.Dest()...)
	if stderrors.Is(err, sql.ErrNoRows) {
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
		where = append(where, "is_active = 1")
	}
	if filter.RuleType != "" {
		where = append(where, "rule_type = ?")
		args = append(args, string(filter.RuleType))
	}

	query := `SELECT ` + storage.RuleColumns + ` FROM routing_rules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := a.db.QueryContext(ctx, query, args...)
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

// deactivate only touches active rows so updated_at records the real transition
func (a *Adapter) deactivate(ctx context.Context, id string, now time.Time) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE routing_rules SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`,
		storage.ToMillis(now), id)
	if err != nil {
		return errors.InternalError("failed to deactivate routing rule", err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = ?`, id)
	if err != nil {
		return errors.InternalError("failed to delete routing rule", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.InternalError("failed to delete routing rule", err)
	}
	if n == 0 {
		return routing.NotFound(id)
	}
	return nil
}

// TryReserve claims one slot with a single conditional UPDATE. The row
// returned by RETURNING is the post-increment state; when the increment took
// the last slot the same statement cleared is_active.
func (a *Adapter) TryReserve(ctx context.Context, id string, now time.Time) (*routing.Reservation, error) {
	nowMS := storage.ToMillis(now)

	var rec storage.RuleRecord
	err := a.db.QueryRowContext(ctx, `
		UPDATE routing_rules
		SET allocated_count = allocated_count + 1,
			is_active = CASE
				WHEN allocate_count IS NOT NULL AND allocated_count + 1 >= allocate_count THEN 0
				ELSE 1
			END,
			updated_at = ?
		WHERE id = ?
			AND is_active = 1
			AND (allocate_count IS NULL OR allocated_count < allocate_count)
			AND (expires_at IS NULL OR expires_at > ?)
		RETURNING `+storage.RuleColumns,
		nowMS, id, nowMS,
	).Scan(rec.Dest()...)

	switch {
	case err == nil:
		rule, err := rec.Rule()
		if err != nil {
			return nil, err
		}
		return &routing.Reservation{Status: routing.Reserved, Rule: rule, Exhausted: rec.Exhausted()}, nil
	case !stderrors.Is(err, sql.ErrNoRows):
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
	nowMS := storage.ToMillis(now)
	result, err := a.db.ExecContext(ctx, `
		UPDATE routing_rules SET is_active = 0, updated_at = ?
		WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`,
		nowMS, nowMS)
	if err != nil {
		return 0, errors.InternalError("failed to deactivate expired routing rules", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.InternalError("failed to deactivate expired routing rules", err)
	}
	return int(n), nil
}

var _ routing.RuleStore = (*Adapter)(nil)
