package provider

import (
	"regexp"
	"strconv"
	"time"
)

// Kind is the shared error taxonomy. Every error a Provider can return from
// StreamTurn classifies into exactly one of these.
type Kind string

const (
	KindTransient       Kind = "transient"    // connection reset/timeout, 5xx, premature close
	KindRateLimit       Kind = "rate_limit"   // 429 or typed rate_limit_exceeded
	KindContextOverflow Kind = "context_overflow"
	KindClientError     Kind = "client_error" // 4xx other than 429
	KindModelNotFound   Kind = "model_not_found"
	KindUnknown         Kind = "unknown"
)

// ClassifiedError carries the fields needed to build a terminal system
// message per kind: status/code/type/message/request-id, plus a
// server-provided retry hint for rate limits.
type ClassifiedError struct {
	Kind       Kind
	StatusCode int
	Code       string
	Type       string
	Message    string
	RequestID  string
	RetryAfter time.Duration // only meaningful when Kind == KindRateLimit
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// retryHintPattern matches the "try again in Ns" style hint the remote API
// embeds in rate-limit error messages.
var retryHintPattern = regexp.MustCompile(`(?i)try again in (\d+(?:\.\d+)?)\s*s`)

// ParseRetryHint extracts a "try again in N[.M]s" duration from message, if
// present.
func ParseRetryHint(message string) (time.Duration, bool) {
	m := retryHintPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// contextOverflowPattern matches the context-length-exceeded message shape
// used for the context-overflow kind.
var contextOverflowPattern = regexp.MustCompile(`(?i)max_tokens is too large`)

// LooksLikeContextOverflow reports whether an invalid_request_error's message
// matches the context-overflow heuristic.
func LooksLikeContextOverflow(typ, message string) bool {
	return typ == "invalid_request_error" && contextOverflowPattern.MatchString(message)
}
