// Package providers implements the LLM transports behind the agent.Provider
// interface: Anthropic via the official SDK, and the OpenAI Responses API
// over HTTP streaming with an optional WebSocket chaining path.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailReason categorizes why a provider request failed, driving retry and
// fallback decisions.
type FailReason string

const (
	FailBilling          FailReason = "billing"
	FailRateLimit        FailReason = "rate_limit"
	FailAuth             FailReason = "auth"
	FailTimeout          FailReason = "timeout"
	FailServer           FailReason = "server_error"
	FailInvalidRequest   FailReason = "invalid_request"
	FailModelUnavailable FailReason = "model_unavailable"
	FailChainBroken      FailReason = "chain_broken"
	FailUnknown          FailReason = "unknown"
)

// IsRetryable reports whether retrying the same request may succeed.
func (r FailReason) IsRetryable() bool {
	switch r {
	case FailRateLimit, FailTimeout, FailServer:
		return true
	default:
		return false
	}
}

// ProviderError is a structured transport failure with enough context for
// retry logic and debugging.
type ProviderError struct {
	Reason    FailReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Cause != nil:
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps a raw failure, classifying it by message.
func NewProviderError(provider, model string, cause error) *ProviderError {
	e := &ProviderError{Provider: provider, Model: model, Cause: cause, Reason: FailUnknown}
	if cause != nil {
		e.Message = cause.Error()
		e.Reason = Classify(cause)
	}
	return e
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatus(status)
	return e
}

// WithCode records a provider error code and reclassifies when the code is
// recognized.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if r := classifyCode(code); r != FailUnknown {
		e.Reason = r
	}
	return e
}

// WithMessage sets the human-readable message.
func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// WithRequestID records the provider's request id.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// Classify inspects an error message and returns its failure category.
func Classify(err error) FailReason {
	if err == nil {
		return FailUnknown
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return FailTimeout
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return FailRateLimit
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return FailAuth
	case strings.Contains(msg, "billing"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "402"):
		return FailBilling
	case strings.Contains(msg, "previous_response_not_found"),
		strings.Contains(msg, "previous response not found"):
		return FailChainBroken
	case strings.Contains(msg, "model not found"),
		strings.Contains(msg, "model_not_found"):
		return FailModelUnavailable
	case strings.Contains(msg, "internal server"),
		strings.Contains(msg, "server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return FailServer
	default:
		return FailUnknown
	}
}

func classifyStatus(status int) FailReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailAuth
	case status == http.StatusPaymentRequired:
		return FailBilling
	case status == http.StatusTooManyRequests:
		return FailRateLimit
	case status == http.StatusBadRequest:
		return FailInvalidRequest
	case status == http.StatusNotFound:
		return FailModelUnavailable
	case status >= 500:
		return FailServer
	default:
		return FailUnknown
	}
}

func classifyCode(code string) FailReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return FailRateLimit
	case "authentication_error", "invalid_api_key":
		return FailAuth
	case "billing_error", "insufficient_quota":
		return FailBilling
	case "previous_response_not_found":
		return FailChainBroken
	case "model_not_found", "model_not_available":
		return FailModelUnavailable
	case "server_error", "internal_error":
		return FailServer
	case "invalid_request_error":
		return FailInvalidRequest
	default:
		return FailUnknown
	}
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether an error should be retried against the same
// transport.
func IsRetryable(err error) bool {
	if pe, ok := GetProviderError(err); ok {
		return pe.Reason.IsRetryable()
	}
	return Classify(err).IsRetryable()
}

// IsChainBroken reports whether the error indicates the server no longer
// holds the previous response of a WebSocket chain.
func IsChainBroken(err error) bool {
	if pe, ok := GetProviderError(err); ok && pe.Reason == FailChainBroken {
		return true
	}
	return Classify(err) == FailChainBroken
}
