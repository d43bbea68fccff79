// Package guard switches binaries into test mode when imported by a test,
// so calling main never dials Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FINCORE_TEST_MODE") == "" {
			_ = os.Setenv("FINCORE_TEST_MODE", "1")
		}
	})
}
