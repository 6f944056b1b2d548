package crowdfund

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Transport is the network collaborator connecting the client to a ledger
// node. Submits block until the node reports the requested commitment;
// fetches distinguish absence (false, nil error) from failure.
type Transport interface {
	SubmitOperation(ctx context.Context, op SignedOperation, commitment Commitment) (Receipt, error)
	FetchAccount(ctx context.Context, address Address) ([]byte, bool, error)
	Balance(ctx context.Context, key PublicKey) (uint64, error)
	LatestBlockhash(ctx context.Context) (Blockhash, error)
}

// HTTPTransport implements Transport over a node's JSON-RPC endpoint.
type HTTPTransport struct {
	endpoint       string
	client         *http.Client
	logger         zerolog.Logger
	doRetry        bool
	pollInterval   time.Duration
	confirmTimeout time.Duration
	nextID         atomic.Uint64
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithTransportLogger attaches a logger for wire-level debug logging.
func WithTransportLogger(logger zerolog.Logger) TransportOption {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithReadRetry enables retries (with exponential backoff) for idempotent
// reads: account fetches, balances, and blockhashes. Submissions are never
// retried regardless of this option.
func WithReadRetry() TransportOption {
	return func(t *HTTPTransport) {
		t.doRetry = true
	}
}

// WithConfirmTimeout bounds the confirmation wait after a submission.
// If not provided, defaults to 90 seconds.
func WithConfirmTimeout(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.confirmTimeout = d
	}
}

// WithPollInterval sets the initial interval of the confirmation poll.
// If not provided, defaults to 400 milliseconds.
func WithPollInterval(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.pollInterval = d
	}
}

// NewHTTPTransport creates a Transport speaking JSON-RPC to the node at
// endpoint.
func NewHTTPTransport(endpoint string, options ...TransportOption) (*HTTPTransport, error) {
	if endpoint == "" {
		return nil, errors.New("missing RPC endpoint!")
	}

	t := &HTTPTransport{
		endpoint:       endpoint,
		client:         &http.Client{},
		logger:         zerolog.Nop(),
		pollInterval:   400 * time.Millisecond,
		confirmTimeout: 90 * time.Second,
	}

	for _, option := range options {
		option(t)
	}

	return t, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcErrorDetail) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorDetail `json:"error"`
}

func (t *HTTPTransport) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      t.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	t.logger.Debug().Str("method", method).Msg("issuing RPC request")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, retryableError{Err: fmt.Errorf("failed to make request: %w", err), canRetry: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryableError{Err: fmt.Errorf("failed to read response body: %w", err), canRetry: true}
	}

	if resp.StatusCode >= 400 {
		canRetry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryableError{
			Err:      fmt.Errorf("HTTP error: %d (Raw Response: %s)", resp.StatusCode, strings.TrimSpace(string(respBody))),
			canRetry: canRetry,
		}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// callRead issues an idempotent read, retrying retryable failures when the
// transport was built with WithReadRetry.
func (t *HTTPTransport) callRead(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if !t.doRetry {
		return t.call(ctx, method, params)
	}

	operation := func() (json.RawMessage, error) {
		result, err := t.call(ctx, method, params)
		if err != nil {
			re, ok := err.(retryable)
			if !ok || !re.CanRetry() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
}

type accountInfoResult struct {
	Value *struct {
		Data []string `json:"data"`
	} `json:"value"`
}

// FetchAccount returns the raw account image at address, or (nil, false,
// nil) when no record exists there yet. Absence is a normal, expected
// outcome, not a failure.
func (t *HTTPTransport) FetchAccount(ctx context.Context, address Address) ([]byte, bool, error) {
	result, err := t.callRead(ctx, "getAccountInfo", []any{
		address.String(),
		map[string]string{"encoding": "base64"},
	})
	if err != nil {
		return nil, false, err
	}

	var info accountInfoResult
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal account info: %w", err)
	}

	if info.Value == nil {
		return nil, false, nil
	}
	if len(info.Value.Data) == 0 {
		return nil, false, errors.New("account info carries no data field")
	}

	data, err := base64.StdEncoding.DecodeString(info.Value.Data[0])
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode account data: %w", err)
	}

	return data, true, nil
}

// Balance returns the lamport balance of key.
func (t *HTTPTransport) Balance(ctx context.Context, key PublicKey) (uint64, error) {
	result, err := t.callRead(ctx, "getBalance", []any{key.String()})
	if err != nil {
		return 0, err
	}

	var balance struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &balance); err != nil {
		return 0, fmt.Errorf("failed to unmarshal balance: %w", err)
	}

	return balance.Value, nil
}

// LatestBlockhash returns a fresh blockhash for operation construction.
func (t *HTTPTransport) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	result, err := t.callRead(ctx, "getLatestBlockhash", nil)
	if err != nil {
		return Blockhash{}, err
	}

	var latest struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &latest); err != nil {
		return Blockhash{}, fmt.Errorf("failed to unmarshal blockhash: %w", err)
	}

	parsed, err := ParseAddress(latest.Value.Blockhash)
	if err != nil {
		return Blockhash{}, fmt.Errorf("failed to parse blockhash: %w", err)
	}

	return Blockhash(parsed), nil
}

// SubmitOperation sends the signed operation and blocks until the node
// reports it at the requested commitment, the confirmation window closes,
// or ctx is done. The send itself happens exactly once: a confirmation
// timeout does not mean the operation failed, and resubmitting it risks
// duplicate effect.
func (t *HTTPTransport) SubmitOperation(ctx context.Context, op SignedOperation, commitment Commitment) (Receipt, error) {
	result, err := t.call(ctx, "sendTransaction", []any{
		base64.StdEncoding.EncodeToString(op.Serialize()),
		map[string]string{"encoding": "base64", "preflightCommitment": string(commitment)},
	})
	if err != nil {
		return Receipt{}, err
	}

	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return Receipt{}, fmt.Errorf("failed to unmarshal signature: %w", err)
	}

	t.logger.Debug().Str("signature", signature).Msg("operation sent, awaiting confirmation")

	receipt, err := t.awaitConfirmation(ctx, signature, commitment)
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

type signatureStatus struct {
	Slot               uint64 `json:"slot"`
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

var errNotYetConfirmed = errors.New("operation not yet at requested commitment")

func (t *HTTPTransport) awaitConfirmation(ctx context.Context, signature string, commitment Commitment) (Receipt, error) {
	operation := func() (Receipt, error) {
		result, err := t.call(ctx, "getSignatureStatuses", []any{[]string{signature}})
		if err != nil {
			re, ok := err.(retryable)
			if ok && re.CanRetry() {
				return Receipt{}, err
			}
			return Receipt{}, backoff.Permanent(err)
		}

		var statuses struct {
			Value []*signatureStatus `json:"value"`
		}
		if err := json.Unmarshal(result, &statuses); err != nil {
			return Receipt{}, backoff.Permanent(fmt.Errorf("failed to unmarshal signature statuses: %w", err))
		}

		if len(statuses.Value) == 0 || statuses.Value[0] == nil {
			return Receipt{}, errNotYetConfirmed
		}

		status := statuses.Value[0]
		if status.Err != nil {
			return Receipt{}, backoff.Permanent(fmt.Errorf("ledger program rejected operation %s: %v", signature, status.Err))
		}
		if !commitmentReached(Commitment(status.ConfirmationStatus), commitment) {
			return Receipt{}, errNotYetConfirmed
		}

		return Receipt{Signature: signature, Slot: status.Slot}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.pollInterval

	receipt, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(t.confirmTimeout),
	)
	if err != nil {
		if errors.Is(err, errNotYetConfirmed) {
			return Receipt{}, fmt.Errorf("operation %s not confirmed within %s: %w", signature, t.confirmTimeout, err)
		}
		return Receipt{}, err
	}
	return receipt, nil
}

var commitmentRank = map[Commitment]int{
	CommitmentProcessed: 1,
	CommitmentConfirmed: 2,
	CommitmentFinalized: 3,
}

func commitmentReached(got, want Commitment) bool {
	return commitmentRank[got] >= commitmentRank[want]
}
