package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger tagged with the running test's name.
func TestLogger(t testing.TB) *log.Logger {
	return log.New(os.Stdout, "[test "+t.Name()+"] ", log.LstdFlags|log.Lmsgprefix)
}
