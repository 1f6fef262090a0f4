package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	cb := New(Config{Name: "stripe", FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		assert.True(t, cb.Allow())
		cb.Failure()
	}

	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, ResetTimeout: time.Minute})

	cb.Failure()
	cb.Success()
	cb.Failure()

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	cb := New(Config{FailureThreshold: 1, ResetTimeout: time.Second, HalfOpenMaxCalls: 1})
	cb.now = func() time.Time { return now }

	cb.Failure()
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.False(t, cb.Allow())

	cb.Success()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreaker_Execute(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, ResetTimeout: time.Minute})
	declined := errors.New("card declined")

	err := cb.Execute(func() error { return declined }, func(error) bool { return false })
	assert.ErrorIs(t, err, declined)
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(func() error { return errors.New("503") }, nil)
	assert.Equal(t, StateOpen, cb.GetState())

	err = cb.Execute(func() error { return nil }, nil)
	assert.ErrorIs(t, err, ErrOpen)

	cb.Reset()
	assert.NoError(t, cb.Execute(func() error { return nil }, nil))
}
