// Package sqlstore implements storage.LevelRepository on a relational table
// through sqlx. PostgreSQL (lib/pq) and SQLite (modernc) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	_ "modernc.org/sqlite"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrInvalidIdentifier indicates a table or column name that is not a plain SQL identifier.
var ErrInvalidIdentifier = errors.New("invalid sql identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config names the table and columns holding record levels.
type Config struct {
	Table       string
	IDColumn    string
	LevelColumn string
}

// DefaultConfig returns the posts table layout.
func DefaultConfig() Config {
	return Config{
		Table:       "posts",
		IDColumn:    "post_id",
		LevelColumn: "post_level",
	}
}

func (c Config) validate() error {
	for _, name := range []string{c.Table, c.IDColumn, c.LevelColumn} {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return nil
}

type txKey struct{}

func txFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// LevelRepository implements storage.LevelRepository.
type LevelRepository struct {
	db     *sqlx.DB
	cfg    Config
	owned  bool
	logger *slog.Logger

	// insertMissing is set once the repository created the table itself.
	// A table owned by another service is only ever updated.
	insertMissing bool

	getQuery    string
	updateQuery string
	upsertQuery string
	schemaQuery string
}

var _ storage.LevelRepository = (*LevelRepository)(nil)

// Open connects to dsn with driver and returns a repository that owns the connection.
func Open(ctx context.Context, driver, dsn string, cfg Config) (*LevelRepository, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	repo, err := New(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	repo.owned = true
	return repo, nil
}

// New creates a repository over an existing connection. Close leaves db open.
func New(db *sqlx.DB, cfg Config) (*LevelRepository, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &LevelRepository{
		db:     db,
		cfg:    cfg,
		logger: slog.Default().With("component", "sqlstore"),
	}
	r.getQuery = db.Rebind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ?",
		cfg.LevelColumn, cfg.Table, cfg.IDColumn))
	r.updateQuery = db.Rebind(fmt.Sprintf(
		"UPDATE %s SET %s = ? WHERE %s = ?",
		cfg.Table, cfg.LevelColumn, cfg.IDColumn))
	r.upsertQuery = db.Rebind(fmt.Sprintf(
		"INSERT INTO %[1]s (%[2]s, %[3]s) VALUES (?, ?) ON CONFLICT (%[2]s) DO UPDATE SET %[3]s = excluded.%[3]s",
		cfg.Table, cfg.IDColumn, cfg.LevelColumn))
	r.schemaQuery = fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s BIGINT PRIMARY KEY, %s INTEGER)",
		cfg.Table, cfg.IDColumn, cfg.LevelColumn)
	return r, nil
}

// DB returns the underlying connection.
func (r *LevelRepository) DB() *sqlx.DB {
	return r.db
}

// EnsureSchema creates the table if it does not exist and lets SetLevel
// insert rows for unknown records. Deployments sharing the table with
// other services manage it themselves and never call this.
func (r *LevelRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.schemaQuery); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.cfg.Table, err)
	}
	r.insertMissing = true
	return nil
}

// Close closes the connection if the repository opened it.
func (r *LevelRepository) Close() error {
	if !r.owned {
		return nil
	}
	return r.db.Close()
}

// ext returns the transaction carried by ctx, or the database.
func (r *LevelRepository) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// WithTransaction executes fn within a transaction.
// If ctx already carries one, fn joins it.
func (r *LevelRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Error("rollback failed", "err", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// GetLevel returns the stored level of id. A missing row or a NULL level reports false.
func (r *LevelRepository) GetLevel(ctx context.Context, id core.ID) (core.Level, bool, error) {
	var level sql.NullInt64
	err := sqlx.GetContext(ctx, r.ext(ctx), &level, r.getQuery, int64(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read level of record %d: %w", id, err)
	}
	if !level.Valid {
		return 0, false, nil
	}
	return core.Level(level.Int64), true, nil
}

// SetLevel updates the level column of the row for id. A missing row is
// storage.ErrNotFound unless EnsureSchema was called, in which case it is inserted.
func (r *LevelRepository) SetLevel(ctx context.Context, id core.ID, level core.Level) error {
	if r.insertMissing {
		if _, err := r.ext(ctx).ExecContext(ctx, r.upsertQuery, int64(id), int64(level)); err != nil {
			return fmt.Errorf("failed to write level of record %d: %w", id, err)
		}
		return nil
	}

	res, err := r.ext(ctx).ExecContext(ctx, r.updateQuery, int64(level), int64(id))
	if err != nil {
		return fmt.Errorf("failed to write level of record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write level of record %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: record %d in %s", storage.ErrNotFound, id, r.cfg.Table)
	}
	return nil
}
