package budget

import (
	"unicode/utf8"

	"github.com/soyeahso/docent/internal/domain"
)

// TruncationMarker is appended to any output the enforcer had to cut,
// so callers and end users can tell a response was bounded.
const TruncationMarker = "… [truncated]"

// Enforcer keeps prompt material and generated output inside configured
// cost ceilings. All budgets are passed per call; the enforcer itself
// holds only the estimator.
type Enforcer struct {
	est Estimator
}

func NewEnforcer(est Estimator) *Enforcer {
	return &Enforcer{est: est}
}

// Estimate exposes the underlying estimator.
func (e *Enforcer) Estimate(text string) int {
	return e.est.Estimate(text)
}

// Fit selects the most recent messages whose combined estimated cost
// stays within budget, returned in their original chronological order.
// When even the newest message alone is over budget it is kept in
// truncated form rather than dropped, so a non-empty input always
// produces a non-empty result.
func (e *Enforcer) Fit(msgs []domain.Message, budget int) []domain.Message {
	if len(msgs) == 0 {
		return nil
	}

	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := e.est.Estimate(msgs[i].Content)
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}

	if start == len(msgs) {
		last := msgs[len(msgs)-1]
		last.Content = e.truncate(last.Content, budget)
		return []domain.Message{last}
	}

	out := make([]domain.Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}

// TruncateOutput bounds generated text to budget, appending a visible
// marker when anything was cut. Text already within budget is returned
// unchanged.
func (e *Enforcer) TruncateOutput(text string, budget int) string {
	if e.est.Estimate(text) <= budget {
		return text
	}
	return e.truncate(text, budget) + TruncationMarker
}

// truncate cuts text proportionally so its estimated cost fits budget,
// backing up to a rune boundary so the result stays valid UTF-8.
func (e *Enforcer) truncate(text string, budget int) string {
	cost := e.est.Estimate(text)
	if cost <= budget || text == "" {
		return text
	}
	if budget <= 0 {
		return ""
	}

	keep := len(text) * budget / cost
	for keep > 0 && !utf8.RuneStart(text[keep]) {
		keep--
	}
	return text[:keep]
}
