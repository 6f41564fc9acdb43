// Package tests holds helpers shared by tests that need external services.
package tests

import (
	"os"
	"testing"
)

// ConnStringEnv names the environment variable holding the connection
// string of the PostgreSQL instance used by CI tests.
const ConnStringEnv = "CI_TEST_CONN_STRING"

// SkipIfShort skips tests that need a live database, either because -short
// was given or because no database is configured.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
	if os.Getenv(ConnStringEnv) == "" {
		t.Skipf("skipping test; %s is not set", ConnStringEnv)
	}
}
