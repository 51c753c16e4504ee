// Package monitoring holds the diagnostic logger of the production test.
package monitoring

import "log"

// Logf is the diagnostic logger shared by every package of the test. It
// defaults to log.Printf. Operator prompts never go through it, so muting it
// leaves the console flow intact.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetPrefix routes diagnostics through a dedicated log.Logger that tags each
// line with prefix, keeping the standard logger's flags and output.
func SetPrefix(prefix string) {
	l := log.New(log.Writer(), prefix, log.Flags())
	Logf = l.Printf
}
