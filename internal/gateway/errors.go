package gateway

import (
	"errors"

	"github.com/soyeahso/docent/internal/fault"
	"github.com/soyeahso/docent/internal/llm"
)

// failure maps a handler error to the wire shapes for one response and
// records it. The raw error goes to the log under the correlation ID;
// the caller sees only the classified kind and its safe message.
func (s *Server) failure(corrID, method string, err error) (Status, ErrorShape) {
	kind := fault.Classify(err)

	s.log.WithCorrelation(corrID).Error().
		Err(err).
		Str("method", method).
		Str("kind", kind.String()).
		Msg("request failed")

	if kind == fault.KindProvider {
		s.metrics.ProviderFailure(providerLabel(err))
	}

	st := Status{
		Success: false,
		Message: fault.SafeMessage(err),
		Code:    kind.Code(),
		Error:   kind.String(),
		CorrID:  corrID,
	}
	shape := ErrorShape{
		Code:      kind.String(),
		Message:   st.Message,
		Retryable: retryable(kind),
	}
	return st, shape
}

// retryable reports whether the caller may usefully retry after a
// failure of this kind.
func retryable(k fault.Kind) bool {
	switch k {
	case fault.KindUnavailable, fault.KindTimeout, fault.KindProvider:
		return true
	default:
		return false
	}
}

// providerLabel extracts the provider name for the error counter.
func providerLabel(err error) string {
	var pe *llm.ProviderError
	if errors.As(err, &pe) && pe.Provider != "" {
		return pe.Provider
	}
	return "unknown"
}
