// Package registry owns the live sessions of a manager.
//
// A Registry maps caller-chosen identifiers to sessions. Each session is a
// child process launched through the platform shell with all three standard
// streams piped. Stdout lines feed two consumers: the session's reply queue,
// drained by the correlator when a request is waiting, and the broadcast
// publisher. Stderr lines go to the publisher and the debug log only.
//
// The registry mutex guards the map and nothing else. Writing a request and
// waiting for its reply happens under the session's own send lock, so a slow
// session never stalls operations on other sessions.
package registry
