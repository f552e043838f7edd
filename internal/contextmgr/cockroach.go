package contextmgr

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
	_ "github.com/lib/pq"
)

// CockroachStore implements Store using CockroachDB.
type CockroachStore struct {
	db *sql.DB

	stmtCreate *sql.Stmt
	stmtGet    *sql.Stmt
	stmtUpdate *sql.Stmt
	stmtDelete *sql.Stmt
}

// DB exposes the underlying database connection for related stores (the
// event bus's CockroachBus shares the same "contexts" table).
func (s *CockroachStore) DB() *sql.DB {
	return s.db
}

// CockroachConfig holds configuration for CockroachDB connection.
type CockroachConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns default configuration.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		Host:            "localhost",
		Port:            26257,
		User:            "root",
		Password:        "",
		Database:        "garyzero",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewCockroachStore creates a new CockroachDB-backed context store.
func NewCockroachStore(config *CockroachConfig) (*CockroachStore, error) {
	if config == nil {
		config = DefaultCockroachConfig()
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password,
		config.Database, config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)

	return newCockroachStoreWithDSN(dsn, config)
}

// NewCockroachStoreFromDSN creates a store using a raw DSN/URL.
func NewCockroachStoreFromDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	return newCockroachStoreWithDSN(dsn, config)
}

func newCockroachStoreWithDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &CockroachStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return store, nil
}

func (s *CockroachStore) prepareStatements() error {
	var err error

	s.stmtCreate, err = s.db.Prepare(`
		INSERT INTO contexts (context_id, created_at, paused, log_guid, log_version)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare create context: %w", err)
	}

	s.stmtGet, err = s.db.Prepare(`
		SELECT context_id, created_at, paused, log_guid, log_version
		FROM contexts WHERE context_id = $1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get context: %w", err)
	}

	s.stmtUpdate, err = s.db.Prepare(`
		UPDATE contexts SET paused = $1, log_guid = $2, log_version = $3
		WHERE context_id = $4
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update context: %w", err)
	}

	s.stmtDelete, err = s.db.Prepare(`DELETE FROM contexts WHERE context_id = $1`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete context: %w", err)
	}

	return nil
}

// Close closes the database connection and prepared statements.
func (s *CockroachStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.stmtCreate, s.stmtGet, s.stmtUpdate, s.stmtDelete} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing store: %v", errs)
	}
	return nil
}

func (s *CockroachStore) Create(ctx context.Context, c *models.Context) error {
	if c.ContextID == "" {
		return fmt.Errorf("context_id is required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.stmtCreate.ExecContext(ctx, c.ContextID, c.CreatedAt, c.Paused, c.LogGUID, c.LogVersion)
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}
	return nil
}

func (s *CockroachStore) Get(ctx context.Context, contextID string) (*models.Context, error) {
	c := &models.Context{}
	err := s.stmtGet.QueryRowContext(ctx, contextID).Scan(&c.ContextID, &c.CreatedAt, &c.Paused, &c.LogGUID, &c.LogVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get context: %w", err)
	}
	return c, nil
}

func (s *CockroachStore) Update(ctx context.Context, c *models.Context) error {
	result, err := s.stmtUpdate.ExecContext(ctx, c.Paused, c.LogGUID, c.LogVersion, c.ContextID)
	if err != nil {
		return fmt.Errorf("failed to update context: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CockroachStore) Delete(ctx context.Context, contextID string) error {
	result, err := s.stmtDelete.ExecContext(ctx, contextID)
	if err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CockroachStore) List(ctx context.Context, opts ListOptions) ([]*models.Context, error) {
	query := `SELECT context_id, created_at, paused, log_guid, log_version FROM contexts`
	var args []interface{}
	argPos := 1
	if opts.PausedOnly {
		query += fmt.Sprintf(" WHERE paused = $%d", argPos)
		args = append(args, true)
		argPos++
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, opts.Limit)
		argPos++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	defer rows.Close()

	var out []*models.Context
	for rows.Next() {
		c := &models.Context{}
		if err := rows.Scan(&c.ContextID, &c.CreatedAt, &c.Paused, &c.LogGUID, &c.LogVersion); err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contexts: %w", err)
	}
	return out, nil
}
