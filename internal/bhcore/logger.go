package bhcore

import (
	"log"
	"os"
	"sync/atomic"
)

// defaultLogger mirrors the teacher's use of the standard library log
// package (cmd/llmrouter/main.go logs with log.Printf/log.Fatalf rather
// than pulling in a structured logging library). bridgehub follows the
// same convention: every package that needs to log a non-fatal
// diagnostic (a dropped envelope, a receiver panic, a stream that timed
// out) goes through this single injectable logger instead of calling
// the global log functions directly, so tests can silence or capture it.
var loggerPtr atomic.Pointer[log.Logger]

func init() {
	loggerPtr.Store(log.New(os.Stderr, "bridgehub: ", log.LstdFlags))
}

// Logger returns the current package-level logger.
func Logger() *log.Logger {
	return loggerPtr.Load()
}

// SetLogger replaces the package-level logger. Useful in tests to
// redirect output, or in a host application that wants bridgehub's
// diagnostics folded into its own logging pipeline.
func SetLogger(l *log.Logger) {
	loggerPtr.Store(l)
}
