// Package backoff provides retry policies for AWS control-plane calls.
package backoff

import (
	"errors"
	"math"
	"time"

	"github.com/aws/smithy-go"
)

const maxBackoffSeconds = 60

// Policy configures local retry behavior for throttled calls.
type Policy struct {
	MaxAttempts int
	BaseSeconds float64
	Multiplier  float64
}

// Default returns the retry policy used for weight writes and metric reads:
// exponential backoff capped at 3 attempts.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseSeconds: 1,
		Multiplier:  2.0,
	}
}

// Wait returns the backoff duration before the given attempt number (1-based).
func (p Policy) Wait(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Duration(p.BaseSeconds * float64(time.Second))
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	backoff := p.BaseSeconds * math.Pow(mult, float64(attempt-1))
	if backoff > maxBackoffSeconds {
		backoff = maxBackoffSeconds
	}
	return time.Duration(backoff * float64(time.Second))
}

// throttleCodes are the API error codes AWS services return when rate limited.
var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"ProvisionedThroughputExceededException": true,
}

// IsThrottle reports whether the error is a retryable rate-limit response.
func IsThrottle(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return throttleCodes[apiErr.ErrorCode()]
	}
	return false
}

// IsAccessDenied reports whether the error is a permission failure.
func IsAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "AccessDenied" || code == "AccessDeniedException" || code == "UnauthorizedOperation"
	}
	return false
}
