package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fundvault/native/fund"
)

// Client executes an approved trade proposal against the venue and reports
// the realised output.
type Client interface {
	Execute(ctx context.Context, proposal *fund.TradeProposal) (fund.SettlementResult, error)
}

// HTTPClient talks to a settlement venue over its JSON execute endpoint.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// Config describes the settlement venue connection.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// NewHTTPClient constructs a settlement client with traced transport.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("settlement endpoint must be configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type executeRequest struct {
	FundID     string `json:"fund_id"`
	ProposalID uint64 `json:"proposal_id"`
	FromToken  string `json:"from_token"`
	ToToken    string `json:"to_token"`
	Amount     string `json:"amount"`
	MinimumOut string `json:"minimum_out"`
}

type executeResponse struct {
	Success   bool   `json:"success"`
	AmountOut string `json:"amount_out"`
	Reason    string `json:"reason"`
}

// Execute submits the proposal to the venue. Transport failures are returned
// as errors; a venue-reported failure comes back as an unsuccessful result so
// the engine can record the attempt.
func (c *HTTPClient) Execute(ctx context.Context, proposal *fund.TradeProposal) (fund.SettlementResult, error) {
	if proposal == nil {
		return fund.SettlementResult{}, fmt.Errorf("nil proposal")
	}
	payload := executeRequest{
		FundID:     proposal.FundID,
		ProposalID: proposal.ID,
		FromToken:  string(proposal.FromToken),
		ToToken:    string(proposal.ToToken),
		Amount:     amountString(proposal.Amount),
		MinimumOut: amountString(proposal.MinimumOut),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fund.SettlementResult{}, fmt.Errorf("encode execute request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/execute", bytes.NewReader(body))
	if err != nil {
		return fund.SettlementResult{}, fmt.Errorf("build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Keyed on the proposal identity so a retry after a crash between the
	// venue call and the recorded outcome cannot double-execute at a
	// deduplicating venue.
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s/%d", proposal.FundID, proposal.ID))

	resp, err := c.client.Do(req)
	if err != nil {
		return fund.SettlementResult{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fund.SettlementResult{}, fmt.Errorf("settlement venue returned %d", resp.StatusCode)
	}

	var decoded executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fund.SettlementResult{}, fmt.Errorf("decode execute response: %w", err)
	}
	result := fund.SettlementResult{Success: decoded.Success, Reason: decoded.Reason}
	if trimmed := strings.TrimSpace(decoded.AmountOut); trimmed != "" {
		amountOut, ok := new(big.Int).SetString(trimmed, 10)
		if !ok {
			return fund.SettlementResult{}, fmt.Errorf("invalid amount_out %q", decoded.AmountOut)
		}
		result.AmountOut = amountOut
	}
	return result, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
