package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"farmScope/internal/model"
)

// Default client settings.
const (
	DefaultCallTimeout  = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultRPS          = 20
	DefaultBurst        = 8

	finalityFinal = "final"
)

// Observer receives one sample per view call.
type Observer interface {
	ObserveViewCall(method string, outcome string, elapsed time.Duration)
}

// Client issues read-only contract view calls against a NEAR JSON-RPC node.
type Client struct {
	endpoint     string
	httpClient   *http.Client
	limiter      *rate.Limiter
	callTimeout  time.Duration
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
	observer     Observer
	requestID    atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCallTimeout bounds every single attempt of a call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = d
	}
}

func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBackoff = backoff
	}
}

// WithRateLimit caps outgoing requests per second across all goroutines.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient creates a client for the RPC URL.
func NewClient(rpcURL string, opts ...Option) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	c := &Client{
		endpoint:     rpcURL,
		httpClient:   &http.Client{},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
		callTimeout:  DefaultCallTimeout,
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type callFunctionParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// CallResult is the payload of a call_function query.
type CallResult struct {
	Result      []byte `json:"-"`
	Logs        []string
	BlockHeight uint64
	BlockHash   string
}

type callResultWire struct {
	Result      []int    `json:"result"`
	Logs        []string `json:"logs"`
	BlockHeight uint64   `json:"block_height"`
	BlockHash   string   `json:"block_hash"`
	Error       string   `json:"error"`
}

// Call executes methodName on contractID with JSON-encoded args at final
// finality and returns the raw JSON returned by the contract.
func (c *Client) Call(ctx context.Context, contractID, methodName string, args []byte) ([]byte, error) {
	res, err := c.CallFunction(ctx, contractID, methodName, args)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// CallFunction is Call with block metadata.
func (c *Client) CallFunction(ctx context.Context, contractID, methodName string, args []byte) (*CallResult, error) {
	if len(args) == 0 {
		args = []byte("{}")
	}
	params := callFunctionParams{
		RequestType: "call_function",
		Finality:    finalityFinal,
		AccountID:   contractID,
		MethodName:  methodName,
		ArgsBase64:  base64.StdEncoding.EncodeToString(args),
	}

	started := time.Now()
	var res *CallResult
	err := c.retry(ctx, contractID+"."+methodName, func(ctx context.Context) error {
		var err error
		res, err = c.query(ctx, params)
		return err
	})
	c.observe(methodName, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) observe(method string, err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	var transportErr *model.TransportError
	var decodeErr *model.DecodeError
	switch {
	case err == nil:
	case errors.As(err, &transportErr):
		outcome = "transport_error"
	case errors.As(err, &decodeErr):
		outcome = "decode_error"
	default:
		outcome = "error"
	}
	c.observer.ObserveViewCall(method, outcome, elapsed)
}

func (c *Client) query(parent context.Context, params callFunctionParams) (*CallResult, error) {
	what := params.AccountID + "." + params.MethodName

	if c.limiter != nil {
		if err := c.limiter.Wait(parent); err != nil {
			return nil, err
		}
	}

	ctx := parent
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, c.callTimeout)
		defer cancel()
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "query",
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return nil, parent.Err()
		}
		return nil, &model.TransportError{Op: what, Err: err}
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &model.TransportError{Op: what, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, &model.TransportError{Op: what, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &model.DecodeError{What: what, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody))}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, &model.DecodeError{What: what, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Transient() {
			return nil, &model.TransportError{Op: what, Err: rpcResp.Error}
		}
		return nil, &model.DecodeError{What: what, Err: rpcResp.Error}
	}

	var wire callResultWire
	if err := json.Unmarshal(rpcResp.Result, &wire); err != nil {
		return nil, &model.DecodeError{What: what, Err: fmt.Errorf("unmarshal result: %w", err)}
	}
	if wire.Error != "" {
		return nil, &model.DecodeError{What: what, Err: errors.New(wire.Error)}
	}
	if err := validateBlockHash(wire.BlockHash); err != nil {
		return nil, &model.DecodeError{What: what, Err: err}
	}

	result := make([]byte, len(wire.Result))
	for i, b := range wire.Result {
		if b < 0 || b > 255 {
			return nil, &model.DecodeError{What: what, Err: fmt.Errorf("result byte %d out of range: %d", i, b)}
		}
		result[i] = byte(b)
	}

	return &CallResult{
		Result:      result,
		Logs:        wire.Logs,
		BlockHeight: wire.BlockHeight,
		BlockHash:   wire.BlockHash,
	}, nil
}

func validateBlockHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("missing block hash")
	}
	raw, err := base58.Decode(hash)
	if err != nil {
		return fmt.Errorf("block hash %q: %w", hash, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("block hash %q: length %d", hash, len(raw))
	}
	return nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

var _ Caller = (*Client)(nil)
