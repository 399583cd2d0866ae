// Package testhelper silences the global logger in tests. Import it for
// side effects from a package's TestMain.
package testhelper

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// init disables logging for tests unless CORTEX_TEST_LOG is set.
func init() {
	if testing.Testing() && os.Getenv("CORTEX_TEST_LOG") == "" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}
}
