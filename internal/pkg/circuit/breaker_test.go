package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("broker", 2, time.Minute)
	cb.SetClock(func() time.Time { return now })
	boom := errors.New("boom")

	assert.Equal(t, boom, cb.Do(func() error { return boom }, nil))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, boom, cb.Do(func() error { return boom }, nil))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Do(func() error { called = true; return nil }, nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Do(func() error { return nil }, nil))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	cb := NewCircuitBreaker("broker", 1, time.Minute)
	skip := errors.New("validation")
	err := cb.Do(func() error { return skip }, func(err error) bool { return !errors.Is(err, skip) })
	assert.Equal(t, skip, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("broker", 1, time.Minute)
	cb.SetClock(func() time.Time { return now })
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}
