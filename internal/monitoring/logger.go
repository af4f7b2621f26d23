// Package monitoring carries the shared diagnostic logger used by the ingest
// transports. Splitting it out keeps the network package free of a hard
// dependency on the process logger, so replay tools and tests can silence or
// capture transport chatter.
package monitoring

import "log"

var noop = func(string, ...interface{}) {}

// Logf logs transport diagnostics. It defaults to log.Printf; replace it with
// SetLogger to redirect or mute.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = noop
		return
	}
	Logf = f
}
