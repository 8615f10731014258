package db

//nolint:golint,revive
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/omni/rollup-bridge-reconciler/config"
)

const (
	DefaultMigrationsPath = "db/migrations"
	defaultMaxConns       = 10
)

type txKey struct{}

type DB struct {
	cfg *config.DBConfig
	db  *sqlx.DB
}

func Open(ctx context.Context, cfg *config.DBConfig) (*DB, error) {
	db := &DB{cfg: cfg}
	conn, err := sqlx.ConnectContext(ctx, "pgx", db.dbURL("postgres"))
	if err != nil {
		return nil, fmt.Errorf("can't connect to postgres database: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns / 3)
	db.db = conn
	return db, nil
}

// OpenAndMigrate connects and applies pending migrations found in the given directory.
func OpenAndMigrate(ctx context.Context, cfg *config.DBConfig, migrationsPath string) (*DB, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err = db.Migrate(migrationsPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Migrate(migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, db.dbURL("pgx"))
	if err != nil {
		return fmt.Errorf("can't open migrations from %s: %w", migrationsPath, err)
	}
	defer m.Close()
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("can't apply postgres database migrations: %w", err)
	}
	return nil
}

func (db *DB) dbURL(scheme string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s", scheme, db.cfg.User, db.cfg.Password, db.cfg.Host, db.cfg.Port, db.cfg.DB)
}

func (db *DB) Close() error {
	return db.db.Close()
}

// InTx runs fn in a transaction. Queries issued with the context passed to fn join that transaction.
// Nested calls reuse the outer transaction.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("can't begin transaction: %w", err)
	}
	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if err2 := tx.Rollback(); err2 != nil && !errors.Is(err2, sql.ErrTxDone) {
			return fmt.Errorf("can't rollback transaction after %v: %w", err, err2)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("can't commit transaction: %w", err)
	}
	return nil
}

func (db *DB) queryer(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.db
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	done := observe(callerName(2))
	res, err := db.queryer(ctx).ExecContext(ctx, query, args...)
	return res, done(err)
}

func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	done := observe(callerName(2))
	return done(sqlx.SelectContext(ctx, db.queryer(ctx), dest, query, args...))
}

var closureSuffix = regexp.MustCompile(`(\.func\d+)+$`)

// callerName returns the bare method name of the caller, used as the query label.
// Closures are attributed to the enclosing function.
func callerName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	name := closureSuffix.ReplaceAllString(fn.Name(), "")
	return name[strings.LastIndex(name, ".")+1:]
}
