package model

import "fmt"

// TransportError is a network or timeout failure against the RPC node or a
// store. It is retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a malformed or unexpectedly shaped response. It is not
// retried: it points at contract or schema drift upstream.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EmptyResultError reports a collection that resolved to zero elements where
// at least one was expected. It is a soft failure: reported, never committed.
type EmptyResultError struct {
	Collection string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("empty result for %s", e.Collection)
}
