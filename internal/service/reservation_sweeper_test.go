package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

type countingReleaser struct {
	calls atomic.Int32
	ttl   atomic.Int64
	err   error
}

func (r *countingReleaser) ReleaseExpiredReservations(_ context.Context, ttl time.Duration) (int, error) {
	r.calls.Add(1)
	r.ttl.Store(int64(ttl))
	if r.err != nil {
		return 0, r.err
	}
	return 2, nil
}

func TestReservationSweeper_DisabledWithoutTTL(t *testing.T) {
	r := &countingReleaser{}
	s := NewReservationSweeper(r, 0, 5*time.Millisecond, logger.NewNop())

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(0), r.calls.Load())
}

func TestReservationSweeper_RunsOnInterval(t *testing.T) {
	r := &countingReleaser{}
	s := NewReservationSweeper(r, time.Hour, 5*time.Millisecond, logger.NewNop())

	s.Start()
	s.Start()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()

	assert.Equal(t, int64(time.Hour), r.ttl.Load())
}

func TestReservationSweeper_SweepReportsCount(t *testing.T) {
	r := &countingReleaser{}
	s := NewReservationSweeper(r, time.Hour, time.Minute, logger.NewNop())

	assert.Equal(t, 2, s.Sweep(context.Background()))

	r.err = errors.New("database unavailable")
	assert.Equal(t, 0, s.Sweep(context.Background()))
}
