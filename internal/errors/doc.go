// Package errors defines error types for the stdio session manager.
//
// This package provides structured error types for each failure scenario
// when starting, addressing, or talking to a supervised process. All error
// types support unwrapping and can be checked using errors.Is, errors.As,
// and errors.AsType.
package errors
