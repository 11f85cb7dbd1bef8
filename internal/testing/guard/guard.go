// Package guard flips the binaries into test mode when imported for side
// effects from a test.
package guard

import (
	"os"
	"sync"
)

// Env is the variable app.Config.TestMode is loaded from.
const Env = "FACTORYBOOKS_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
