package backoff

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestWait(t *testing.T) {
	p := Default()
	assert.Equal(t, 1*time.Second, p.Wait(1))
	assert.Equal(t, 2*time.Second, p.Wait(2))
	assert.Equal(t, 4*time.Second, p.Wait(3))
}

func TestWait_Cap(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseSeconds: 30, Multiplier: 2.0}
	assert.Equal(t, 60*time.Second, p.Wait(5))
}

func TestWait_DefaultMultiplier(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseSeconds: 1}
	assert.Equal(t, 2*time.Second, p.Wait(2))
}

func TestIsThrottle(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	assert.True(t, IsThrottle(throttled))

	other := &smithy.GenericAPIError{Code: "ValidationError", Message: "nope"}
	assert.False(t, IsThrottle(other))

	assert.False(t, IsThrottle(errors.New("plain error")))
	assert.False(t, IsThrottle(nil))
}

func TestIsAccessDenied(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}
	assert.True(t, IsAccessDenied(denied))
	assert.False(t, IsAccessDenied(errors.New("plain error")))
}
