package config

import "time"

// LLMTimeouts centralizes timeout configuration for calls through the
// external LLMClient interface.
//
// In Go the SHORTEST timeout in a chain wins: a context deadline shorter than
// the HTTP client's own timeout cuts the call off first. These values are the
// canonical timeouts the Operation Engine and Memory Pipeline should wrap
// every vendor call with.
type LLMTimeouts struct {
	// HTTPClientTimeout bounds a single non-streaming vendor call.
	HTTPClientTimeout time.Duration `json:"http_client_timeout"`

	// StreamingTimeout bounds a streaming vendor call; streaming responses
	// may legitimately take longer than a single-shot completion.
	StreamingTimeout time.Duration `json:"streaming_timeout"`

	// RetryBackoffBase/RetryBackoffMax configure exponential backoff between
	// retries of a transient vendor failure.
	RetryBackoffBase time.Duration `json:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `json:"retry_backoff_max"`

	// MaxRetries is the number of retry attempts for a transient failure
	// before the circuit breaker records it as a hard failure.
	MaxRetries int `json:"max_retries"`

	// RateLimitDelay is the minimum delay enforced between consecutive calls
	// to the same provider.
	RateLimitDelay time.Duration `json:"rate_limit_delay"`
}

// DefaultLLMTimeouts returns sensible defaults for an interactive coding
// assistant backend.
func DefaultLLMTimeouts() LLMTimeouts {
	return LLMTimeouts{
		HTTPClientTimeout: 2 * time.Minute,
		StreamingTimeout:  5 * time.Minute,
		RetryBackoffBase:  1 * time.Second,
		RetryBackoffMax:   30 * time.Second,
		MaxRetries:        3,
		RateLimitDelay:    200 * time.Millisecond,
	}
}

// Global singleton for consistent timeout access across packages that don't
// carry a *Config reference end to end.
var globalLLMTimeouts = DefaultLLMTimeouts()

// GetLLMTimeouts returns the global LLM timeout configuration.
func GetLLMTimeouts() LLMTimeouts {
	return globalLLMTimeouts
}

// SetLLMTimeouts updates the global LLM timeout configuration. Call early in
// application startup, before any LLM calls are issued.
func SetLLMTimeouts(t LLMTimeouts) {
	globalLLMTimeouts = t
}
