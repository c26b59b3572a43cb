package errors

import "fmt"

// Configuration errors

// ErrConfiguration reports a missing or invalid required setting. It is the
// only error class allowed to abort initialization.
type ErrConfiguration struct {
	Field  string
	Reason string
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

// Scan errors

type ErrConnection struct {
	Service string
	Err     error
}

func (e *ErrConnection) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Service, e.Err)
}

func (e *ErrConnection) Unwrap() error {
	return e.Err
}

type ErrFetch struct {
	Service string
	Err     error
}

func (e *ErrFetch) Error() string {
	return fmt.Sprintf("failed to fetch usage for %s: %v", e.Service, e.Err)
}

func (e *ErrFetch) Unwrap() error {
	return e.Err
}

type ErrNoCheckers struct{}

func (e *ErrNoCheckers) Error() string {
	return "no service checkers registered"
}

// Alert errors

type ErrTransport struct {
	Provider string
	Err      error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("failed to deliver %s notification: %v", e.Provider, e.Err)
}

func (e *ErrTransport) Unwrap() error {
	return e.Err
}

type ErrMalformedInput struct {
	Provider string
	Value    interface{}
}

func (e *ErrMalformedInput) Error() string {
	return fmt.Sprintf("%s received malformed problems: %#v", e.Provider, e.Value)
}
