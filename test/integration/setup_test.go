package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psyopd/survey/internal/platform/db"
)

// globalPool is the shared, migrated test database initialized in TestMain.
var globalPool *pgxpool.Pool

// TestMain migrates SURVEY_TEST_DATABASE_URL when set, otherwise a Postgres
// container. Without either the suite is skipped.
func TestMain(m *testing.M) {
	ctx := context.Background()
	connStr := os.Getenv("SURVEY_TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		if _, err := exec.LookPath("docker"); err != nil {
			fmt.Fprintln(os.Stderr, "docker not found and SURVEY_TEST_DATABASE_URL unset, skipping integration tests")
			os.Exit(0)
		}
		var err error
		connStr, cleanup, err = startPostgres(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
			os.Exit(1)
		}
	}

	if err := db.NewMigrator(connStr).Up(ctx); err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, connStr, 5, 1)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	globalPool = pool

	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// resetDB empties every table between tests.
func resetDB(t *testing.T) {
	t.Helper()
	_, err := globalPool.Exec(context.Background(),
		`TRUNCATE users, survey_results, patient_total_summaries`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}
