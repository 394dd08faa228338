// Package testing forces STOCKD_TEST_MODE for packages that import it so
// binaries' main functions return before touching Postgres or Redis.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("STOCKD_TEST_MODE", "1")
		if os.Getenv("IMPORT_UPLOAD_DIR") == "" {
			_ = os.Setenv("IMPORT_UPLOAD_DIR", os.TempDir())
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be delegated to from a package's own TestMain.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
