package testutil

import (
	"io"
	"log"
	"strings"
	"testing"
)

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// TestLogger returns a logger that writes through t.Log. Room and client
// goroutines may outlive the test, so output is discarded after cleanup.
func TestLogger(t testing.TB) *log.Logger {
	logger := log.New(testWriter{t: t}, "[test] ", log.Lmicroseconds)
	t.Cleanup(func() {
		logger.SetOutput(io.Discard)
	})
	return logger
}

func Float(v float64) *float64 {
	return &v
}
