package near

import (
	"errors"
	"fmt"

	"farmScope/internal/model"
)

// RPCError is a JSON-RPC level error returned by the node.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Name    string         `json:"name"`
	Cause   *RPCErrorCause `json:"cause"`
	Data    interface{}    `json:"data"`
}

// RPCErrorCause is the structured cause attached by nearcore.
type RPCErrorCause struct {
	Name string `json:"name"`
}

func (e *RPCError) Error() string {
	if e.Cause != nil && e.Cause.Name != "" {
		return fmt.Sprintf("rpc error %d %s/%s: %s", e.Code, e.Name, e.Cause.Name, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Transient reports whether the node failed for reasons unrelated to the call.
func (e *RPCError) Transient() bool {
	if e.Cause == nil {
		return e.Name == "INTERNAL_ERROR"
	}
	switch e.Cause.Name {
	case "TIMEOUT_ERROR", "INTERNAL_ERROR", "NO_SYNCED_BLOCKS", "UNAVAILABLE_SHARD", "GARBAGE_COLLECTED_BLOCK":
		return true
	default:
		return false
	}
}

// isRetryable is true only for transport failures; a cancelled parent
// context surfaces as a bare context error and stops the retry loop.
func isRetryable(err error) bool {
	var transportErr *model.TransportError
	return errors.As(err, &transportErr)
}
