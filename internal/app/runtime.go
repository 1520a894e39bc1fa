package app

import (
	"os"
	"sync"
)

const testModeEnv = "CAMPUSGRID_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the process should skip runtime side effects.
// Set CAMPUSGRID_TEST_MODE=1 to run main without external services.
func InTestMode() bool {
	return inTestMode()
}
