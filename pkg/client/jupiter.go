package client

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"token-flow/pkg/swaperr"
	"token-flow/pkg/types"
)

const (
	// DefaultBaseURL is the public quote service
	DefaultBaseURL = "https://quote-api.jup.ag/v6"

	defaultTimeout = 15 * time.Second
)

var baseUnitPattern = regexp.MustCompile(`^[0-9]+$`)

// Quoter fetches price quotes
type Quoter interface {
	Quote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error)
}

// SwapBuilder turns a quote into an unsigned, serialized transaction
type SwapBuilder interface {
	SwapTransaction(ctx context.Context, quote *types.Quote, user solana.PublicKey) (string, error)
}

// JupiterClient talks to the quote and swap HTTP endpoints
type JupiterClient struct {
	http *resty.Client
	log  *logrus.Entry
}

// Option configures a JupiterClient
type Option func(*JupiterClient)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *JupiterClient) {
		c.http.SetTimeout(d)
	}
}

// WithLogger routes request logs to the given entry
func WithLogger(log *logrus.Entry) Option {
	return func(c *JupiterClient) {
		c.log = log
		c.http.SetLogger(log)
	}
}

// NewJupiterClient creates a client for the service at baseURL
func NewJupiterClient(baseURL string, opts ...Option) *JupiterClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(defaultTimeout)

	c := &JupiterClient{
		http: httpClient,
		log:  logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote requests the expected output for an exact-input swap
func (c *JupiterClient) Quote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error) {
	if req.InputMint.IsZero() || req.OutputMint.IsZero() {
		return nil, swaperr.Newf(swaperr.Validation, swaperr.OpQuote, "input and output mints are required")
	}
	if !baseUnitPattern.MatchString(req.Amount) {
		return nil, swaperr.Newf(swaperr.Validation, swaperr.OpQuote, "invalid amount %q", req.Amount)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   req.InputMint.String(),
			"outputMint":  req.OutputMint.String(),
			"amount":      req.Amount,
			"slippageBps": strconv.Itoa(req.SlippageBps),
		}).
		Get("/quote")
	if err != nil {
		return nil, swaperr.New(swaperr.Network, swaperr.OpQuote, fmt.Errorf("failed to get quote from API: %w", err))
	}
	if !resp.IsSuccess() {
		return nil, swaperr.New(swaperr.Network, swaperr.OpQuote, apiError(resp))
	}

	quote, err := decodeQuote(resp.Body())
	if err != nil {
		return nil, swaperr.New(swaperr.Network, swaperr.OpQuote, err)
	}

	c.log.WithFields(logrus.Fields{
		"input_mint":  quote.InputMint,
		"output_mint": quote.OutputMint,
		"in_amount":   quote.InAmount,
		"out_amount":  quote.OutAmount,
	}).Debug("Quote received")

	return quote, nil
}

type swapRequest struct {
	QuoteResponse json.RawMessage `json:"quoteResponse"`
	UserPublicKey string          `json:"userPublicKey"`
	WrapUnwrapSOL bool            `json:"wrapUnwrapSOL"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SwapTransaction asks the service to build the swap transaction for quote.
// The result is the base64 encoded unsigned transaction.
func (c *JupiterClient) SwapTransaction(ctx context.Context, quote *types.Quote, user solana.PublicKey) (string, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return "", swaperr.Newf(swaperr.Validation, swaperr.OpBuildSwap, "quote is required")
	}

	var result swapResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(swapRequest{
			QuoteResponse: quote.Raw,
			UserPublicKey: user.String(),
			WrapUnwrapSOL: true,
		}).
		SetResult(&result).
		Post("/swap")
	if err != nil {
		return "", swaperr.New(swaperr.Network, swaperr.OpBuildSwap, fmt.Errorf("failed to build swap: %w", err))
	}
	if !resp.IsSuccess() {
		return "", swaperr.New(swaperr.Network, swaperr.OpBuildSwap, apiError(resp))
	}
	if result.SwapTransaction == "" {
		return "", swaperr.Newf(swaperr.Network, swaperr.OpBuildSwap, "empty swap transaction")
	}

	return result.SwapTransaction, nil
}

func decodeQuote(body []byte) (*types.Quote, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty quote response")
	}

	var quote types.Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("malformed quote response: %w", err)
	}
	if !baseUnitPattern.MatchString(quote.OutAmount) {
		return nil, fmt.Errorf("malformed quote response: outAmount %q", quote.OutAmount)
	}

	quote.Raw = append(json.RawMessage(nil), body...)
	return &quote, nil
}

// apiError extracts a readable message from an error response body
func apiError(resp *resty.Response) error {
	body := resp.Body()
	if len(body) == 0 {
		return fmt.Errorf("API returned status code %d", resp.StatusCode())
	}

	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if message, ok := errorResp["error"].(string); ok {
			return fmt.Errorf("API error (status %d): %s", resp.StatusCode(), message)
		}
		if message, ok := errorResp["message"].(string); ok {
			return fmt.Errorf("API error (status %d): %s", resp.StatusCode(), message)
		}
	}

	return fmt.Errorf("API error (status %d): %s", resp.StatusCode(), strings.TrimSpace(string(body)))
}
