package testutils

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx" // PGX driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer is a PostgreSQL container for tests.
type PostgresContainer struct {
	Container testcontainers.Container

	User     string
	Password string
	Name     string
	Host     string
	Port     string
}

// StartPostgresContainer starts a PostgreSQL container, terminated at the end of the test.
func StartPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	const (
		user     = "postgres"
		password = "postgres"
		name     = "inventory"
	)

	if runtime.GOOS != "linux" {
		t.Skip("Skipping PostgreSQL container test on non-Linux OS")
	}

	ctx := t.Context()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       name,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err, "Setup: failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Teardown: failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Setup: failed to get container host")
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err, "Setup: failed to get mapped port")

	return &PostgresContainer{
		Container: container,
		User:      user,
		Password:  password,
		Name:      name,
		Host:      host,
		Port:      port.Port(),
	}
}

// DSN returns the connection URI of the database with the given scheme.
func (pc PostgresContainer) DSN(scheme string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%s/%s?sslmode=disable", scheme, pc.User, pc.Password, pc.Host, pc.Port, pc.Name)
}

// ApplyMigrations applies the migrations of migrationsDir to the database.
func (pc PostgresContainer) ApplyMigrations(t *testing.T, migrationsDir string) {
	t.Helper()

	m, err := migrate.New("file://"+migrationsDir, pc.DSN("pgx"))
	require.NoError(t, err, "Setup: failed to create migration instance")
	defer m.Close()

	if err := m.Up(); err != nil {
		require.ErrorIs(t, err, migrate.ErrNoChange, "Setup: failed to apply migrations")
	}
}

// Query runs query and returns every row, each column rendered with fmt.
func (pc PostgresContainer) Query(t *testing.T, query string, args ...any) [][]string {
	t.Helper()

	conn, err := pgx.Connect(t.Context(), pc.DSN("postgres"))
	require.NoError(t, err, "failed to connect to the database")
	defer conn.Close(context.Background())

	rows, err := conn.Query(t.Context(), query, args...)
	require.NoError(t, err, "failed to execute query")
	defer rows.Close()

	var got [][]string
	for rows.Next() {
		values, err := rows.Values()
		require.NoError(t, err, "failed to read row")
		row := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				row[i] = "NULL"
				continue
			}
			row[i] = fmt.Sprint(v)
		}
		got = append(got, row)
	}
	require.NoError(t, rows.Err(), "error occurred during rows iteration")
	return got
}
