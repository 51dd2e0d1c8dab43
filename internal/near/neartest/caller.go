// Package neartest provides an in-memory near.Caller for tests.
package neartest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"farmScope/internal/model"
)

// Handler answers one view call. The returned value is JSON encoded.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Caller routes view calls to handlers registered per contract and method.
type Caller struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	args     map[string][]json.RawMessage
}

func NewCaller() *Caller {
	return &Caller{
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
		args:     make(map[string][]json.RawMessage),
	}
}

func route(contractID, methodName string) string {
	return contractID + "." + methodName
}

// Handle registers h for contractID.methodName.
func (c *Caller) Handle(contractID, methodName string, h Handler) {
	c.mu.Lock()
	c.handlers[route(contractID, methodName)] = h
	c.mu.Unlock()
}

// Respond registers a fixed result.
func (c *Caller) Respond(contractID, methodName string, result interface{}) {
	c.Handle(contractID, methodName, func(context.Context, json.RawMessage) (interface{}, error) {
		return result, nil
	})
}

// Fail registers a fixed error.
func (c *Caller) Fail(contractID, methodName string, err error) {
	c.Handle(contractID, methodName, func(context.Context, json.RawMessage) (interface{}, error) {
		return nil, err
	})
}

func (c *Caller) Call(ctx context.Context, contractID, methodName string, args []byte) ([]byte, error) {
	key := route(contractID, methodName)

	c.mu.Lock()
	c.calls[key]++
	c.args[key] = append(c.args[key], append(json.RawMessage(nil), args...))
	h, ok := c.handlers[key]
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.DecodeError{What: key, Err: fmt.Errorf("no handler registered")}
	}
	result, err := h(ctx, args)
	if err != nil {
		return nil, err
	}
	if raw, ok := result.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(result)
}

// Calls returns how many times contractID.methodName was called.
func (c *Caller) Calls(contractID, methodName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[route(contractID, methodName)]
}

// Args returns the JSON args of every call to contractID.methodName.
func (c *Caller) Args(contractID, methodName string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.args[route(contractID, methodName)]...)
}

// TotalCalls returns the number of calls across all routes.
func (c *Caller) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}
