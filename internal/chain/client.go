package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zmartlabs/zmart-sync/internal/domain"
	"github.com/zmartlabs/zmart-sync/internal/retry"
)

// ClientConfig holds RPC endpoint and confirmation parameters.
type ClientConfig struct {
	RPCURL          string
	ProgramID       string
	Commitment      string
	ConfirmTimeout  time.Duration
	ConfirmInterval time.Duration
}

// Client implements domain.ChainClient against a JSON-RPC node. All
// settlement submissions go through the single authority signer; callers
// serialize submissions, the client does not.
type Client struct {
	rpcURL          string
	programID       string
	commitment      string
	confirmTimeout  time.Duration
	confirmInterval time.Duration
	signer          *Signer
	httpClient      *http.Client
	logger          *slog.Logger
}

// NewClient creates a Client for the given endpoint and signer.
func NewClient(cfg ClientConfig, signer *Signer, logger *slog.Logger) *Client {
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout == 0 {
		confirmTimeout = 30 * time.Second
	}
	confirmInterval := cfg.ConfirmInterval
	if confirmInterval == 0 {
		confirmInterval = 2 * time.Second
	}

	return &Client{
		rpcURL:          cfg.RPCURL,
		programID:       cfg.ProgramID,
		commitment:      commitment,
		confirmTimeout:  confirmTimeout,
		confirmInterval: confirmInterval,
		signer:          signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Authority returns the base58 address of the signing authority.
func (c *Client) Authority() string {
	return c.signer.Address()
}

// instruction is the canonical settlement-instruction envelope. The final
// on-chain binary layout is still open upstream; the envelope isolates the
// encoding in one place so swapping in the real codec is a local change.
type instruction struct {
	Program   string         `json:"program"`
	Name      string         `json:"name"`
	Authority string         `json:"authority"`
	Accounts  []string       `json:"accounts"`
	Args      map[string]any `json:"args"`
}

// ApproveProposal submits the proposal-approval settlement instruction and
// waits for confirmation.
func (c *Client) ApproveProposal(ctx context.Context, marketAddr string, likes, dislikes int) (string, error) {
	return c.submit(ctx, instruction{
		Program:   c.programID,
		Name:      "aggregate_proposal_votes",
		Authority: c.signer.Address(),
		Accounts:  []string{marketAddr},
		Args: map[string]any{
			"final_likes":    likes,
			"final_dislikes": dislikes,
		},
	})
}

// FinalizeMarket submits the dispute-finalize settlement instruction and
// waits for confirmation. A nil outcome means INVALID.
func (c *Client) FinalizeMarket(ctx context.Context, marketAddr string, outcome *bool, agrees, disagrees int) (string, error) {
	return c.submit(ctx, instruction{
		Program:   c.programID,
		Name:      "aggregate_dispute_votes",
		Authority: c.signer.Address(),
		Accounts:  []string{marketAddr},
		Args: map[string]any{
			"final_outcome":   outcome,
			"final_agrees":    agrees,
			"final_disagrees": disagrees,
		},
	})
}

// submit signs the instruction, sends it, and polls for confirmation. The
// returned string is the transaction signature.
func (c *Client) submit(ctx context.Context, ins instruction) (string, error) {
	payload, err := json.Marshal(ins)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("chain: marshal instruction %s: %w", ins.Name, err))
	}

	signature := c.signer.Sign(payload)

	params := []any{
		base64.StdEncoding.EncodeToString(payload),
		map[string]any{
			"encoding":            "base64",
			"signature":           signature,
			"preflightCommitment": c.commitment,
		},
	}

	var txSig string
	if err := c.call(ctx, "sendTransaction", params, &txSig); err != nil {
		return "", err
	}
	if txSig == "" {
		txSig = signature
	}

	c.logger.Debug("settlement transaction sent",
		slog.String("instruction", ins.Name),
		slog.String("signature", txSig),
	)

	if err := c.awaitConfirmation(ctx, txSig); err != nil {
		return "", err
	}
	return txSig, nil
}

// awaitConfirmation polls getSignatureStatuses until the transaction
// reaches the configured commitment or the confirm timeout elapses. A
// timeout is transient: the transaction may still land, and the ingestion
// path reconciles the resulting event either way.
func (c *Client) awaitConfirmation(ctx context.Context, txSig string) error {
	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(c.confirmInterval)
	defer ticker.Stop()

	for {
		var result struct {
			Value []*struct {
				ConfirmationStatus string `json:"confirmationStatus"`
				Err                any    `json:"err"`
				Slot               uint64 `json:"slot"`
			} `json:"value"`
		}

		err := c.call(ctx, "getSignatureStatuses", []any{[]string{txSig}}, &result)
		if err == nil && len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return retry.Permanent(fmt.Errorf("chain: transaction %s failed on-chain: %v", txSig, status.Err))
			}
			if confirmationReached(status.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("chain: transaction %s not confirmed within %s", txSig, c.confirmTimeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("chain: await confirmation %s: %w", txSig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// confirmationReached reports whether got satisfies the wanted commitment
// level (processed < confirmed < finalized).
func confirmationReached(got, want string) bool {
	rank := map[string]int{"processed": 0, "confirmed": 1, "finalized": 2}
	g, okG := rank[got]
	w, okW := rank[want]
	return okG && okW && g >= w
}

// rpcRequest is the standard JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcError is the standard JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC request. Transport failures and node-side
// transient conditions come back as plain (retryable) errors; program
// rejections are marked permanent so the retry policy stops immediately.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return retry.Permanent(fmt.Errorf("chain: marshal %s request: %w", method, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("chain: build %s request: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("chain: read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chain: %s: unexpected status %d: %s", method, resp.StatusCode, truncate(data, 200))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("chain: decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		if isTransientRPCError(envelope.Error) {
			return fmt.Errorf("chain: %s: %w", method, envelope.Error)
		}
		return retry.Permanent(fmt.Errorf("chain: %s: %w", method, envelope.Error))
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("chain: decode %s result: %w", method, err)
		}
	}
	return nil
}

// isTransientRPCError classifies node-side errors that are worth retrying:
// rate limiting, node-behind conditions, and expired blockhashes.
func isTransientRPCError(e *rpcError) bool {
	switch e.Code {
	case -32004, -32005, -32014: // block not available / node behind / unhealthy
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "blockhash") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "too many requests")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface check.
var _ domain.ChainClient = (*Client)(nil)
