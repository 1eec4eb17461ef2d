// Package testutil connects integration tests to Postgres and Redis. Tests
// skip when the service is unreachable unless TEST_REQUIRE_INFRA is set.
package testutil

import (
	"context"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/bot-runner/migrations"
	"github.com/cuongbtq/bot-runner/shared/postgresql"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultTestDBConfig reads TEST_DB_* with local docker defaults
func DefaultTestDBConfig() *postgresql.Config {
	port, err := strconv.Atoi(getEnvOrDefault("TEST_DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return &postgresql.Config{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     port,
		User:     getEnvOrDefault("TEST_DB_USER", "postgres"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "postgres"),
		Database: getEnvOrDefault("TEST_DB_NAME", "bot_runner_test"),
		SSLMode:  "disable",
	}
}

// SetupTestDB opens the test database, applies the schema and empties the
// tables. The connection is closed when the test ends.
func SetupTestDB(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("postgres", DefaultTestDBConfig().DSN())
	if err != nil {
		skipOrFail(t, "Test database not available:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		skipOrFail(t, "Test database not available:", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("test db close failed: %v", err)
		}
	})

	if err := applyMigrations(ctx, db); err != nil {
		t.Fatal("Failed to apply migrations:", err)
	}
	CleanupTestDB(t, db)

	return db
}

// CleanupTestDB deletes all rows in dependency order
func CleanupTestDB(t testing.TB, db *sqlx.DB) {
	t.Helper()

	for _, table := range []string{"job_logs", "jobs", "bot_configurations"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("Failed to clean up table %s: %v", table, err)
		}
	}
}

func applyMigrations(ctx context.Context, db *sqlx.DB) error {
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			return err
		}
	}
	return nil
}

// SetupTestRedis connects to TEST_REDIS_ADDR and flushes TEST_REDIS_DB
func SetupTestRedis(t testing.TB) *goredis.Client {
	t.Helper()

	dbIndex, err := strconv.Atoi(getEnvOrDefault("TEST_REDIS_DB", "15"))
	if err != nil {
		dbIndex = 15
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: getEnvOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		DB:   dbIndex,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		skipOrFail(t, "Redis not available for testing:", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatal("Failed to flush test Redis:", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func skipOrFail(t testing.TB, args ...any) {
	t.Helper()
	if envBool("TEST_REQUIRE_INFRA") {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
