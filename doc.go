// Package stdiomux supervises many long-lived child processes that speak
// line-delimited JSON-RPC 2.0 over stdin and stdout, such as MCP servers.
//
// Each process runs as a session under a caller-chosen id. Every line a
// session writes is consumed twice: as the reply to a waiting request, and
// as an Event for observers.
//
// # Basic Usage
//
//	ctx := context.Background()
//	m := stdiomux.New(stdiomux.WithLogger(slog.Default()))
//	defer m.Close(ctx)
//
//	msg, err := m.Start(ctx, "fs", "npx -y @modelcontextprotocol/server-filesystem /tmp", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(msg) // Process fs started successfully
//
//	reply, err := m.Send(ctx, "fs", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{...}}`)
//
// Commands are run through the platform shell (sh -c, or cmd /C on Windows),
// so pipes, quoting and environment expansion work as on a command line.
//
// # Requests and Notifications
//
// Send checks that the message is a single-line JSON object with a string
// "jsonrpc" tag and a non-empty string "method" before writing it; anything
// else, including a response, is rejected with a MalformedMessageError and
// never reaches the process. Params and ids are passed through as written.
//
// A notification (no id, or a null id) returns "" as soon as it is flushed.
// Any other id makes the message a request.
// A request waits up to the reply timeout (5s by default, see
// WithReplyTimeout) and returns the next line the session writes to stdout,
// verbatim.
//
// The next line is not necessarily the response to the request: a server
// that emits notifications or log lines on stdout, or a reply that arrives
// after its request timed out, will be returned instead. Enable
// WithStrictCorrelation to wait for the response carrying the request's id,
// skipping everything else.
//
// Sends to one session are serialized. Sends to different sessions run
// independently.
//
// # Events
//
// Every stdout and stderr line of every session is published as an Event,
// including lines returned as replies:
//
//	sub := m.Subscribe(stdiomux.Filter{SessionID: "fs"})
//	defer sub.Close()
//
//	for ev := range sub.Events() {
//	    fmt.Printf("[%s %s] %s\n", ev.SessionID, ev.Stream, ev.Line)
//	}
//
// Delivery never blocks the sessions. A subscriber that falls behind loses
// events; Subscription.Dropped reports how many. WithEventSink registers a
// callback that receives every event in order on its own goroutine; a slow
// sink builds a backlog instead of losing events.
//
// # Error Handling
//
// Errors are typed and can be inspected with errors.AsType or errors.Is:
//
//	reply, err := m.Send(ctx, "fs", raw)
//	if errors.Is(err, stdiomux.ErrReplyTimeout) {
//	    // the session is still registered and usable
//	}
//	if e, ok := errors.AsType[*stdiomux.SpawnError](err); ok {
//	    fmt.Println(e.Stderr)
//	}
//
// # Lifecycle
//
// A session whose process exits stays listed (see SessionInfo.Running) until
// Stop or Remove. Close stops every session; the manager cannot be reused.
// WithManager wraps New and Close around a callback.
package stdiomux
