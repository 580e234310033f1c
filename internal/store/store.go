package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPage is returned when the requested page is past the last one.
	ErrInvalidPage = errors.New("invalid page")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PgStore struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{
		db: sqlx.NewDb(db, "postgres"),
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// RunMigrations applies the embedded migrations using its own connection,
// which is closed before returning.
func RunMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (p *PgStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// inTx runs fn inside a transaction, rolling back when fn fails. Postgres'
// default READ COMMITTED level is enough here: concurrent readers keep seeing
// the previous committed rows until Commit.
func (p *PgStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// paginate counts the rows matched by countQ and returns the offset for page.
func (p *PgStore) paginate(ctx context.Context, countQ sq.SelectBuilder, page, size int) (total int, offset uint64, err error) {
	query, args, err := countQ.ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build count: %w", err)
	}
	if err := p.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, 0, fmt.Errorf("count rows: %w", err)
	}
	lastPage := (total + size - 1) / size
	if lastPage < 1 {
		lastPage = 1
	}
	if page > lastPage {
		return total, 0, ErrInvalidPage
	}
	return total, uint64((page - 1) * size), nil
}
