package service

import (
	"context"
	"sync"
	"time"

	"github.com/vaidashi/gallery-api/pkg/logger"
)

// ReservationReleaser cancels abandoned checkouts
type ReservationReleaser interface {
	ReleaseExpiredReservations(ctx context.Context, ttl time.Duration) (int, error)
}

// ReservationSweeper periodically releases artworks held by PENDING, UNPAID orders older than the TTL
type ReservationSweeper struct {
	releaser ReservationReleaser
	ttl      time.Duration
	interval time.Duration
	logger   logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewReservationSweeper creates a sweeper. Start is a no-op when ttl is zero.
func NewReservationSweeper(releaser ReservationReleaser, ttl, interval time.Duration, logger logger.Logger) *ReservationSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &ReservationSweeper{
		releaser: releaser,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins sweeping in the background
func (s *ReservationSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.ttl <= 0 {
		return
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stopCh:
				return
			}
		}
	}()

	s.logger.Info("Reservation sweeper started", "ttl", s.ttl, "interval", s.interval)
}

// Stop halts sweeping and waits for an in-flight sweep to finish
func (s *ReservationSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Reservation sweeper stopped")
}

// Sweep runs one pass and returns how many orders were cancelled
func (s *ReservationSweeper) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	n, err := s.releaser.ReleaseExpiredReservations(ctx, s.ttl)
	if err != nil {
		s.logger.Error("Reservation sweep failed", "error", err)
	}

	return n
}
