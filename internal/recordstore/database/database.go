// Package database persists the record store commands in PostgreSQL.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cast"
	"github.com/ubuntu/insights-inventory/internal/record"
)

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Manager manages the PostgreSQL database connection pool.
type Manager struct {
	dbpool dbPool
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a database manager with a PostgreSQL connection pool using the provided configuration.
// The connection is validated with a ping, but it is not maintained.
func New(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Connected to PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool}, nil
}

// SaveOSInfo replaces the operating system record of the endpoint.
func (db Manager) SaveOSInfo(ctx context.Context, endpointID string, scanID *int64, fields []*string) error {
	return db.upsert(ctx, record.OSInfo, endpointID, scanID, fields)
}

// SaveHardware replaces the hardware record of the endpoint.
func (db Manager) SaveHardware(ctx context.Context, endpointID string, scanID *int64, fields []*string) error {
	return db.upsert(ctx, record.Hardware, endpointID, scanID, fields)
}

// SavePrograms adds a program record to the endpoint.
func (db Manager) SavePrograms(ctx context.Context, endpointID string, scanID *int64, fields []*string) error {
	columns, args, err := row(record.Program, endpointID, scanID, fields)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		pgx.Identifier{string(record.Program)}.Sanitize(),
		strings.Join(columns, ", "),
		placeholders(len(columns)),
	)
	return db.exec(ctx, query, args...)
}

// DeletePrograms drops the program records of the endpoint which were not saved during scan scanID.
func (db Manager) DeletePrograms(ctx context.Context, endpointID string, scanID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE endpoint_id = $1 AND scan_id IS DISTINCT FROM $2`,
		pgx.Identifier{string(record.Program)}.Sanitize())
	return db.exec(ctx, query, endpointID, scanID)
}

// upsert inserts the single record entity keeps per endpoint, or replaces it.
func (db Manager) upsert(ctx context.Context, entity record.Entity, endpointID string, scanID *int64, fields []*string) error {
	columns, args, err := row(entity, endpointID, scanID, fields)
	if err != nil {
		return err
	}

	updates := make([]string, 0, len(columns)-1)
	for _, c := range columns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (endpoint_id) DO UPDATE SET %s`,
		pgx.Identifier{string(entity)}.Sanitize(),
		strings.Join(columns, ", "),
		placeholders(len(columns)),
		strings.Join(updates, ", "),
	)
	return db.exec(ctx, query, args...)
}

func (db Manager) exec(ctx context.Context, query string, args ...any) error {
	if db.dbpool == nil {
		return errors.New("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := db.dbpool.Exec(ctx, query, args...); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("query canceled: %v", err)
		}
		return fmt.Errorf("failed to execute query: %v", err)
	}
	return nil
}

// row returns the sanitized columns of entity and the matching typed values.
func row(entity record.Entity, endpointID string, scanID *int64, fields []*string) (columns []string, args []any, err error) {
	schema, ok := record.Schema(entity)
	if !ok {
		return nil, nil, fmt.Errorf("unknown entity %q", entity)
	}
	if len(fields) != len(schema) {
		return nil, nil, fmt.Errorf("%s expects %d fields, got %d", entity, len(schema), len(fields))
	}

	columns = []string{"endpoint_id", "scan_id"}
	args = []any{endpointID, scanID}
	for i, f := range schema {
		v, err := value(f, fields[i])
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, pgx.Identifier{f.Name}.Sanitize())
		args = append(args, v)
	}
	return columns, args, nil
}

// value converts the wire value of field f to the type of its column.
func value(f record.Field, v *string) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch f.Kind {
	case record.Int:
		i, err := cast.ToInt64E(*v)
		if err != nil {
			return nil, fmt.Errorf("field %q is not an integer: %v", f.Name, err)
		}
		return i, nil
	case record.Float:
		fl, err := cast.ToFloat64E(*v)
		if err != nil {
			return nil, fmt.Errorf("field %q is not a number: %v", f.Name, err)
		}
		return fl, nil
	default:
		return *v, nil
	}
}

func placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(p, ", ")
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (db *Manager) Close() error {
	if db.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		db.dbpool.Close()
	}()

	select {
	case <-done:
		db.dbpool = nil
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("timeout while closing database, connection may still be open")
	}
}

// URI returns a connection URI for PostgreSQL with the given scheme.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c Config) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
