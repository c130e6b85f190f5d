//go:build integration

// Package containers provides shared testcontainers helpers for integration
// tests.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	issuancemigrations "github.com/Hodazia/kubecredentials/migrations/issuance"
	verificationmigrations "github.com/Hodazia/kubecredentials/migrations/verification"
)

// PostgresContainer wraps a testcontainers Postgres instance with both
// service schemas applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a Postgres container and applies the issuance
// and verification schemas.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("credentials_test"),
		postgres.WithUsername("credentials"),
		postgres.WithPassword("credentials_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(ctx)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	pc := &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}

	for _, schema := range []fs.FS{issuancemigrations.FS, verificationmigrations.FS} {
		if err := pc.applyMigrations(ctx, schema); err != nil {
			t.Fatalf("failed to apply migrations: %v", err)
		}
	}
	return pc
}

// applyMigrations executes all *.up.sql files from an embedded schema in
// lexical order.
func (p *PostgresContainer) applyMigrations(ctx context.Context, schema fs.FS) error {
	entries, err := fs.ReadDir(schema, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(schema, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := p.DB.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	return nil
}

// TruncateAll clears both service tables. Use between tests for isolation
// without restarting the container.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	for _, table := range []string{"credentials", "verification_logs"} {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}
