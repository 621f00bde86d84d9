package stdiomux

import (
	"context"
)

// WithManager manages manager lifecycle with automatic cleanup.
//
// This helper creates a manager, executes the callback function, and ensures
// every session is stopped via Close() when done. If Close() fails, a warning
// is logged but does not override the callback's error.
//
// Example usage:
//
//	err := stdiomux.WithManager(ctx, func(m *stdiomux.Manager) error {
//	    if _, err := m.Start(ctx, "echo", "cat", nil); err != nil {
//	        return err
//	    }
//	    reply, err := m.Send(ctx, "echo", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(reply)
//	    return nil
//	},
//	    stdiomux.WithLogger(log),
//	)
func WithManager(ctx context.Context, fn func(*Manager) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	m := New(opts...)

	defer func() {
		// Use a fresh context so cleanup still runs after ctx is cancelled.
		if closeErr := m.Close(context.WithoutCancel(ctx)); closeErr != nil {
			log.Warn("failed to close manager", "error", closeErr)
		}
	}()

	return fn(m)
}
