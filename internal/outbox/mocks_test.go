package outbox

import (
	"context"
	"sync"

	"github.com/vaidashi/gallery-api/internal/models"
	"github.com/vaidashi/gallery-api/pkg/kafka"
)

type fakeStore struct {
	mu        sync.Mutex
	messages  map[int64]*models.OutboxMessage
	lastError map[int64]string
}

func newFakeStore(msgs ...*models.OutboxMessage) *fakeStore {
	s := &fakeStore{messages: map[int64]*models.OutboxMessage{}, lastError: map[int64]string{}}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return s
}

func (s *fakeStore) GetPendingMessages(_ context.Context, limit int) ([]*models.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.OutboxMessage
	for id := int64(1); id <= int64(len(s.messages)) && len(out) < limit; id++ {
		if m, ok := s.messages[id]; ok && m.Status == models.OutboxStatusPending {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkAsProcessing(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.messages[id]
	if m.Status != models.OutboxStatusPending {
		return false, nil
	}
	m.Status = models.OutboxStatusProcessing
	m.ProcessingAttempts++
	return true, nil
}

func (s *fakeStore) MarkAsCompleted(_ context.Context, id int64) error {
	return s.set(id, models.OutboxStatusCompleted, "")
}

func (s *fakeStore) MarkForRetry(_ context.Context, id int64, msg string) error {
	return s.set(id, models.OutboxStatusPending, msg)
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, msg string) error {
	return s.set(id, models.OutboxStatusFailed, msg)
}

func (s *fakeStore) set(id int64, status models.OutboxStatus, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[id].Status = status
	s.lastError[id] = msg
	return nil
}

func (s *fakeStore) status(id int64) models.OutboxStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id].Status
}

type fakeSink struct {
	created []*models.DeadLetterMessage
}

func (f *fakeSink) Create(_ context.Context, m *models.DeadLetterMessage) error {
	f.created = append(f.created, m)
	return nil
}

type fakeQueue struct {
	pending   []*models.DeadLetterMessage
	retrying  []int64
	resolved  []int64
	discarded map[int64]string
}

func (q *fakeQueue) GetPendingMessages(context.Context, int) ([]*models.DeadLetterMessage, error) {
	return q.pending, nil
}

func (q *fakeQueue) MarkAsRetrying(_ context.Context, id int64) error {
	q.retrying = append(q.retrying, id)
	return nil
}

func (q *fakeQueue) MarkAsResolved(_ context.Context, id int64) error {
	q.resolved = append(q.resolved, id)
	return nil
}

func (q *fakeQueue) MarkAsDiscarded(_ context.Context, id int64, reason string) error {
	if q.discarded == nil {
		q.discarded = map[int64]string{}
	}
	q.discarded[id] = reason
	return nil
}

type fakePublisher struct {
	sent []kafka.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, m kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, m)
	return nil
}
