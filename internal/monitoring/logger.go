// Package monitoring holds the swappable diagnostic logger shared by
// the GPS and timing workers.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, log.Printf by default.
// Replace it with SetLogger to redirect worker diagnostics, or to mute
// them in tests.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
