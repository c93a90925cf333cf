// Package testing switches the binaries into test mode when imported for
// side effects from a _test.go file.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

// EnsureTestMode sets LABDESK_TEST_MODE and points the backing services at
// unroutable addresses so nothing real is dialled.
func EnsureTestMode() {
	once.Do(func() {
		_ = os.Setenv("LABDESK_TEST_MODE", "1")
		if os.Getenv("PG_DSN") == "" {
			_ = os.Setenv("PG_DSN", "postgres://labdesk@127.0.0.1:0/labdesk?sslmode=disable")
		}
		if os.Getenv("REDIS_ADDR") == "" {
			_ = os.Setenv("REDIS_ADDR", "127.0.0.1:0")
		}
	})
}

func init() {
	EnsureTestMode()
}
