package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	schedules []ScheduleRecord
	subs      map[string]Subscription
	pushes    map[string]*memPush
}

// memPush augments Push with scheduling state.
type memPush struct {
	Push
	NextAttemptAt time.Time
	Done          bool
	LastError     string
	ResponseCode  int
}

func NewMemory() *Memory {
	return &Memory{
		subs:   map[string]Subscription{},
		pushes: map[string]*memPush{},
	}
}

func (m *Memory) SaveSchedule(ctx context.Context, rec ScheduleRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.schedules = append(m.schedules, rec)
	return rec.ID, nil
}

func (m *Memory) LatestSchedule(ctx context.Context) (*ScheduleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.schedules) == 0 {
		return nil, nil
	}
	rec := m.schedules[len(m.schedules)-1]
	return &rec, nil
}

func (m *Memory) ListSchedules(ctx context.Context, limit int) ([]ScheduleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.schedules) {
		limit = len(m.schedules)
	}
	out := make([]ScheduleRecord, 0, limit)
	for i := len(m.schedules) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.schedules[i])
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, url, secret string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Subscription{ID: uuid.New().String(), URL: url, Secret: secret}
	m.subs[s.ID] = s
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(m.subs, id)
	return nil
}

func (m *Memory) EnqueuePush(ctx context.Context, p Push) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	m.pushes[p.ID] = &memPush{Push: p, NextAttemptAt: time.Now()}
	return nil
}

func (m *Memory) FetchDuePushes(ctx context.Context, limit int) ([]Push, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []Push
	for _, p := range m.pushes {
		if p.Done || p.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, p.Push)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkPush(ctx context.Context, id string, success bool, next *time.Time, lastErr string, code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pushes[id]
	if !ok {
		return fmt.Errorf("push %s not found", id)
	}
	p.Attempts++
	p.LastError = lastErr
	p.ResponseCode = code
	if success {
		p.Done = true
	} else if next != nil {
		p.NextAttemptAt = *next
	}
	return nil
}

func (m *Memory) FailPush(ctx context.Context, id string, lastErr string, code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pushes[id]
	if !ok {
		return fmt.Errorf("push %s not found", id)
	}
	p.Attempts++
	p.Done = true
	p.LastError = lastErr
	p.ResponseCode = code
	return nil
}
