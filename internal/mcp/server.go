package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	mcpgo "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerName is reported in the initialize response.
const ServerName = "stdiomux-demo"

// maxSleep caps the sleep tool.
const maxSleep = time.Minute

// EchoInput is the argument of the echo tool.
type EchoInput struct {
	Text string `json:"text" jsonschema:"text to send back"`
}

// EchoOutput is the result of the echo tool.
type EchoOutput struct {
	Text string `json:"text"`
}

// AddInput is the argument of the add tool.
type AddInput struct {
	A float64 `json:"a" jsonschema:"first addend"`
	B float64 `json:"b" jsonschema:"second addend"`
}

// AddOutput is the result of the add tool.
type AddOutput struct {
	Sum float64 `json:"sum"`
}

// SleepInput is the argument of the sleep tool.
type SleepInput struct {
	Millis int `json:"millis" jsonschema:"how long to wait before replying, in milliseconds"`
}

// SleepOutput is the result of the sleep tool.
type SleepOutput struct {
	Slept string `json:"slept"`
}

// ProgressInput is the argument of the progress tool.
type ProgressInput struct {
	Steps int `json:"steps" jsonschema:"number of progress notifications to send before replying"`
}

// ProgressOutput is the result of the progress tool.
type ProgressOutput struct {
	Steps int `json:"steps"`
}

// StderrInput is the argument of the stderr tool.
type StderrInput struct {
	Text string `json:"text" jsonschema:"line to write to stderr"`
}

// StderrOutput is the result of the stderr tool.
type StderrOutput struct {
	Written bool `json:"written"`
}

// NewServer creates the demo server. Lines written by the stderr tool go to stderr.
func NewServer(log *slog.Logger, version string, stderr io.Writer) *mcpgo.Server {
	log = log.With("component", "demo-server")

	server := mcpgo.NewServer(&mcpgo.Implementation{Name: ServerName, Version: version}, &mcpgo.ServerOptions{
		Logger:       log,
		Instructions: "Demo worker for stdiomux. Tools echo, add, sleep, progress and stderr.",
	})

	mcpgo.AddTool(server, &mcpgo.Tool{
		Name:        "echo",
		Description: "Return the given text",
	}, func(_ context.Context, _ *mcpgo.CallToolRequest, in EchoInput) (*mcpgo.CallToolResult, EchoOutput, error) {
		return nil, EchoOutput(in), nil
	})

	mcpgo.AddTool(server, &mcpgo.Tool{
		Name:        "add",
		Description: "Add two numbers",
	}, func(_ context.Context, _ *mcpgo.CallToolRequest, in AddInput) (*mcpgo.CallToolResult, AddOutput, error) {
		return nil, AddOutput{Sum: in.A + in.B}, nil
	})

	mcpgo.AddTool(server, &mcpgo.Tool{
		Name:        "sleep",
		Description: "Wait before replying",
	}, func(ctx context.Context, _ *mcpgo.CallToolRequest, in SleepInput) (*mcpgo.CallToolResult, SleepOutput, error) {
		d := time.Duration(in.Millis) * time.Millisecond
		if d < 0 || d > maxSleep {
			return nil, SleepOutput{}, fmt.Errorf("millis must be between 0 and %d", maxSleep.Milliseconds())
		}

		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, SleepOutput{}, ctx.Err()
		}

		return nil, SleepOutput{Slept: d.String()}, nil
	})

	mcpgo.AddTool(server, &mcpgo.Tool{
		Name:        "progress",
		Description: "Send progress notifications, then reply",
	}, func(ctx context.Context, req *mcpgo.CallToolRequest, in ProgressInput) (*mcpgo.CallToolResult, ProgressOutput, error) {
		token := req.Params.GetProgressToken()
		if token == nil {
			token = ServerName
		}

		for step := range in.Steps {
			err := req.Session.NotifyProgress(ctx, &mcpgo.ProgressNotificationParams{
				ProgressToken: token,
				Progress:      float64(step + 1),
				Total:         float64(in.Steps),
			})
			if err != nil {
				return nil, ProgressOutput{}, fmt.Errorf("notify progress: %w", err)
			}
		}

		return nil, ProgressOutput(in), nil
	})

	mcpgo.AddTool(server, &mcpgo.Tool{
		Name:        "stderr",
		Description: "Write a line to stderr",
	}, func(_ context.Context, _ *mcpgo.CallToolRequest, in StderrInput) (*mcpgo.CallToolResult, StderrOutput, error) {
		if _, err := fmt.Fprintln(stderr, in.Text); err != nil {
			return nil, StderrOutput{}, fmt.Errorf("write stderr: %w", err)
		}

		return nil, StderrOutput{Written: true}, nil
	})

	return server
}

// Serve runs the demo server on the process's stdin and stdout until the
// client disconnects or ctx ends.
func Serve(ctx context.Context, log *slog.Logger, version string, stderr io.Writer) error {
	return NewServer(log, version, stderr).Run(ctx, &mcpgo.StdioTransport{})
}
