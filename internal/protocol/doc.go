// Package protocol validates outbound JSON-RPC messages and correlates
// requests with reply lines read from a session's stdout.
//
// A message without an id (or with a null id) is a notification: it is
// written and Send returns an empty reply at once. A message with an id is a
// request: Send writes it and then takes the next stdout line as the reply,
// bounded by a timeout.
//
// The next-line rule assumes at most one request is outstanding per session
// and that the process never interleaves unsolicited output between a
// request and its reply. A notification emitted in that window is returned
// as if it were the reply. Strict correlation (NewCorrelator with strict set)
// closes that gap by skipping lines until a response with the same id
// arrives.
//
// Example usage:
//
//	c := protocol.NewCorrelator(log, 5*time.Second, false)
//	reply, err := c.Send(ctx, target, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
package protocol
