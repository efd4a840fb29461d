package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryCredentialStore struct {
	mu        sync.Mutex
	stored    Credential
	hasStored bool
	saves     int
	saveErr   error
}

func (s *memoryCredentialStore) Load(context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasStored {
		return Credential{}, ErrCredentialNotFound
	}
	return s.stored.Clone(), nil
}

func (s *memoryCredentialStore) Save(_ context.Context, credential Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.stored = credential.Clone()
	s.hasStored = true
	s.saves++
	return nil
}

func (s *memoryCredentialStore) snapshot() (Credential, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored.Clone(), s.saves
}

type stubRefresher struct {
	calls   atomic.Int32
	delay   time.Duration
	release chan struct{}
	result  Credential
	err     error
}

func (r *stubRefresher) Refresh(ctx context.Context, _ Credential) (Credential, error) {
	r.calls.Add(1)
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return Credential{}, ctx.Err()
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return Credential{}, r.err
	}
	return r.result, nil
}

type staticCredentials struct {
	credential Credential
	err        error
	calls      atomic.Int32
}

func (s *staticCredentials) EnsureValid(context.Context) (Credential, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Credential{}, s.err
	}
	return s.credential, nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *recordingMetrics) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func noSleep(context.Context, time.Duration) error { return nil }
