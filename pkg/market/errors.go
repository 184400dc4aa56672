package market

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/quorum/pkg/providers"
)

// Error taxonomy. These strings are persisted in ErrorDetail.Type and are
// part of the replay contract; do not rename them.
const (
	ErrTypeConfig             = "config_error"
	ErrTypeAuth               = "auth_error"
	ErrTypeForbidden          = "forbidden"
	ErrTypeRateLimited        = "rate_limited" // local token bucket
	ErrTypeRateLimit          = "rate_limit"   // remote HTTP 429
	ErrTypeServer             = "server_error"
	ErrTypeTimeout            = "timeout"
	ErrTypeNetwork            = "network_error"
	ErrTypeParse              = "parse_error"
	ErrTypeSafetyBlock        = "safety_block"
	ErrTypeCircuitOpen        = "circuit_open"
	ErrTypeProviderNotStarted = "provider_not_started"
	ErrTypeAllProvidersFailed = "all_providers_failed"
	ErrTypeArbiterFailed      = "arbiter_failed"
)

// User-visible strings. Short and non-leaky: no provider names, no HTTP
// detail, no internals.
const (
	MsgAllProvidersFailed = "Unable to get responses from any provider. Please try again later."
	MsgSynthesisFailed    = "Partial results available, but synthesis failed."
	MsgRateLimited        = "Too many requests. Please wait a moment and try again."
)

// RateLimitedError reports a call rejected by the local token bucket
// before reaching the remote. It does not count against the breaker.
type RateLimitedError struct {
	Provider string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider %q rate limited locally", e.Provider)
}

// CircuitOpenError reports a call rejected by an open circuit breaker.
type CircuitOpenError struct {
	Provider string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("provider %q circuit is open", e.Provider)
}

// ProviderNotStartedError reports a call routed to a provider that has no
// running client, typically a configuration mismatch.
type ProviderNotStartedError struct {
	Provider string
}

func (e *ProviderNotStartedError) Error() string {
	return fmt.Sprintf("provider %q is not started", e.Provider)
}

// AllProvidersFailedError is the only error the coordinator surfaces to
// the caller: a round produced zero successful answers.
type AllProvidersFailedError struct {
	Round int
}

func (e *AllProvidersFailedError) Error() string {
	if e.Round > 0 {
		return fmt.Sprintf("all providers failed in round %d", e.Round)
	}
	return "all providers failed"
}

// StorageError wraps a persistence failure. Persistence errors are fatal
// to the run that hit them.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a provider call failure onto the persisted
// ErrorDetail and the answer status it should carry. Timeouts get their
// own status because the round loop treats them as "no response" rather
// than a remote verdict.
func ClassifyError(err error) (ErrorDetail, AnswerStatus) {
	var (
		authErr    *providers.AuthError
		forbidden  *providers.ForbiddenError
		rateLimit  *providers.RateLimitError
		serverErr  *providers.ServerError
		timeoutErr *providers.TimeoutError
		networkErr *providers.NetworkError
		parseErr   *providers.ParseError
		safetyErr  *providers.SafetyBlockError
		localLimit *RateLimitedError
		circOpen   *CircuitOpenError
		notStarted *ProviderNotStartedError
	)

	switch {
	case errors.As(err, &localLimit):
		return ErrorDetail{Type: ErrTypeRateLimited, Message: err.Error()}, AnswerError

	case errors.As(err, &circOpen):
		return ErrorDetail{Type: ErrTypeCircuitOpen, Message: err.Error()}, AnswerError

	case errors.As(err, &notStarted):
		return ErrorDetail{Type: ErrTypeProviderNotStarted, Message: err.Error()}, AnswerError

	case errors.As(err, &authErr):
		return ErrorDetail{Type: ErrTypeAuth, Message: err.Error(), HTTPStatus: 401}, AnswerError

	case errors.As(err, &forbidden):
		return ErrorDetail{Type: ErrTypeForbidden, Message: err.Error(), HTTPStatus: 403}, AnswerError

	case errors.As(err, &rateLimit):
		return ErrorDetail{Type: ErrTypeRateLimit, Message: err.Error(), HTTPStatus: 429}, AnswerError

	case errors.As(err, &serverErr):
		return ErrorDetail{Type: ErrTypeServer, Message: err.Error(), HTTPStatus: serverErr.StatusCode}, AnswerError

	case errors.As(err, &timeoutErr):
		return ErrorDetail{Type: ErrTypeTimeout, Message: err.Error()}, AnswerTimeout

	case errors.As(err, &safetyErr):
		return ErrorDetail{Type: ErrTypeSafetyBlock, Message: err.Error()}, AnswerError

	case errors.As(err, &parseErr):
		// The remote body itself was unusable, so there is no answer text
		// to keep. Distinct from status parse_error, where the model spoke
		// but ignored the JSON contract.
		return ErrorDetail{Type: ErrTypeParse, Message: err.Error()}, AnswerError

	case errors.As(err, &networkErr):
		return ErrorDetail{Type: ErrTypeNetwork, Message: err.Error()}, AnswerError

	case errors.Is(err, context.DeadlineExceeded):
		return ErrorDetail{Type: ErrTypeTimeout, Message: "call deadline exceeded"}, AnswerTimeout

	case errors.Is(err, context.Canceled):
		return ErrorDetail{Type: ErrTypeTimeout, Message: "call cancelled"}, AnswerTimeout

	default:
		return ErrorDetail{Type: ErrTypeNetwork, Message: err.Error()}, AnswerError
	}
}

// RetryableError reports whether a failed attempt may be retried:
// remote 429, retryable 5xx, or a transport timeout. Everything else is
// a definitive verdict.
func RetryableError(err error) bool {
	var (
		rateLimit  *providers.RateLimitError
		serverErr  *providers.ServerError
		timeoutErr *providers.TimeoutError
	)

	switch {
	case errors.As(err, &rateLimit):
		return true
	case errors.As(err, &serverErr):
		switch serverErr.StatusCode {
		case 500, 502, 503, 504:
			return true
		}
		return false
	case errors.As(err, &timeoutErr):
		return true
	default:
		return false
	}
}
