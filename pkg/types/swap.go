package types

import (
	"encoding/json"

	"github.com/gagliardetto/solana-go"
)

// Token is a static registry entry
type Token struct {
	Symbol   string           `json:"symbol"`
	Label    string           `json:"label"`
	Decimals uint8            `json:"decimals"`
	Mint     solana.PublicKey `json:"mint"`
}

// SwapIntent represents the user's current swap selection
type SwapIntent struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	SlippageBps int    `json:"slippage_bps"`
}

// QuoteRequest holds the parameters sent to the quoting service
type QuoteRequest struct {
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	Amount      string // base units
	SlippageBps int
}

// Quote is a single response from the quoting service.
// Raw keeps the verbatim payload so it can be handed back to the swap endpoint.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	SlippageBps    int             `json:"slippageBps"`
	PriceImpactPct string          `json:"priceImpactPct"`
	Raw            json.RawMessage `json:"-"`
}

// EstimationPhase is the state of the estimation state machine
type EstimationPhase string

const (
	PhaseIdle       EstimationPhase = "idle"
	PhaseEstimating EstimationPhase = "estimating"
	PhaseSettled    EstimationPhase = "settled"
	PhaseFailed     EstimationPhase = "failed"
)

// EstimationState is the estimate shown next to the destination token
type EstimationState struct {
	Phase          EstimationPhase `json:"phase"`
	DebouncedInput string          `json:"debounced_input"`
	IsLoading      bool            `json:"is_loading"`
	ToAmount       string          `json:"to_amount"`
	Generation     uint64          `json:"generation"`
	Err            string          `json:"error,omitempty"`
}

// SwapResult is reported once a swap has been confirmed
type SwapResult struct {
	AttemptID   string `json:"attempt_id"`
	Signature   string `json:"signature"`
	ExplorerURL string `json:"explorer_url"`
}
