package llm

import "time"

// Error message templates
const (
	errRateLimiter          = "rate limiter error: %w"
	errOpenAIChatCompletion = "openai chat completion error: %w"
	errParseResponse        = "failed to parse response: %w"
)

// Operation names used as metric labels.
const (
	OperationGroup = "group"
	OperationText  = "text"
	OperationImage = "image"
)

// Log key strings
const (
	logKeyOperation = "operation"
	logKeyModel     = "model"
	logKeyAttempt   = "attempt"
	logKeyCount     = "count"
	logKeyContent   = "content"
)

// Numeric constants
const (
	rateLimiterBurst        = 5
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute
	truncateLengthShort     = 500
	truncateLengthLong      = 4000
	thousandGroupDigits     = 3
	defaultModel            = "gpt-4o-mini"
)
