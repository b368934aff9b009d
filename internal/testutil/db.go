package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"instapulse/internal/model"
	"instapulse/internal/util"
	"instapulse/pkg/db"
	"instapulse/pkg/rbac"
)

// SetupTestDB connects to TEST_DATABASE_URL and recreates every table.
// The test is skipped when the variable is not set.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		DROP TABLE IF EXISTS outbox_events CASCADE;
		DROP TABLE IF EXISTS analytics CASCADE;
		DROP TABLE IF EXISTS instagram_posts CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
	`)
	if err != nil {
		pool.Close()
		t.Fatalf("Failed to clean database: %v", err)
	}

	if err := db.EnsureSchema(ctx, pool, zap.NewNop()); err != nil {
		pool.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// NewAccount builds an unsaved account with a hashed password.
func NewAccount(t *testing.T, email, password string, role rbac.Role) *model.Account {
	t.Helper()

	hash, err := util.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return &model.Account{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    "Test",
		LastName:     string(role),
	}
}
