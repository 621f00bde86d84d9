// Package broadcast fans every line read from a session's stdout or stderr
// out to external observers.
//
// Delivery is best-effort and never blocks the publisher: a subscriber whose
// buffer is full misses the event and its dropped counter is incremented.
// Broadcast is an observability path, not a control path, so no error is
// ever returned to the line readers.
package broadcast
