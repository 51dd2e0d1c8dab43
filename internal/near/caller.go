package near

import (
	"context"
	"encoding/json"
	"fmt"

	"farmScope/internal/model"
)

// Caller executes a read-only view call: (contract, method, JSON args) -> JSON result.
type Caller interface {
	Call(ctx context.Context, contractID, methodName string, args []byte) ([]byte, error)
}

// View encodes args as a JSON object, performs the call and decodes the
// result into out. A nil args sends "{}".
func View(ctx context.Context, caller Caller, contractID, methodName string, args interface{}, out interface{}) error {
	payload := []byte("{}")
	if args != nil {
		var err error
		payload, err = json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal %s args: %w", methodName, err)
		}
	}

	raw, err := caller.Call(ctx, contractID, methodName, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &model.DecodeError{What: contractID + "." + methodName, Err: err}
	}
	return nil
}
