package budget

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator approximates the provider-side token cost of a piece of text.
// Estimates are a planning proxy, not an exact count.
type Estimator interface {
	Estimate(text string) int
}

// HeuristicEstimator derives cost from byte length. Roughly four bytes
// per token for English prose, which is what the budgets are tuned for.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// TiktokenEstimator counts tokens with a real BPE encoding. Slower than
// the heuristic and needs the encoding's vocabulary available, so it is
// opt-in via budget.estimator.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding, e.g. "cl100k_base".
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (t *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// NewEstimator builds an Estimator from config values.
func NewEstimator(kind, encoding string) (Estimator, error) {
	switch kind {
	case "", "heuristic":
		return HeuristicEstimator{}, nil
	case "tiktoken":
		return NewTiktokenEstimator(encoding)
	default:
		return nil, fmt.Errorf("unknown estimator %q", kind)
	}
}
