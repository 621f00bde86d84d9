// Package mcp implements a small Model Context Protocol server that speaks
// line-delimited JSON-RPC over stdin and stdout.
//
// It is what `stdiomux demo-server` runs: a ready-made worker process for
// trying the manager without installing a third-party server. Its tools
// cover the cases a session manager has to cope with: immediate replies,
// slow replies, notifications written ahead of a reply, and stderr output.
package mcp
