// Package backoff tracks per-topic rate-limit state and decides when a topic
// may be polled again.
package backoff

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Scheduler produces the next allowed poll time per topic. Topics without
// recorded failures are always eligible. Safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	topics map[string]*topicState

	base time.Duration
	max  time.Duration
	now  func() time.Time
}

type topicState struct {
	policy              *backoff.ExponentialBackOff
	consecutiveFailures uint32
	nextEligible        time.Time
}

// NewScheduler builds a scheduler with the given base and cap for the
// jittered exponential delay.
func NewScheduler(base, max time.Duration) *Scheduler {
	return &Scheduler{
		topics: make(map[string]*topicState),
		base:   base,
		max:    max,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Scheduler) newPolicy() *backoff.ExponentialBackOff {
	p := backoff.NewExponentialBackOff()
	// The failure count is incremented before the delay is computed, so the
	// first delay is base*2^1.
	p.InitialInterval = 2 * s.base
	p.Multiplier = 2
	p.MaxInterval = s.max
	p.RandomizationFactor = 0.3
	p.Reset()
	return p
}

// RecordOutcome updates the topic's state after a poll attempt. A success
// clears any pending delay and resets the failure count; a rate-limit
// failure schedules the next eligible poll time.
func (s *Scheduler) RecordOutcome(topicID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		delete(s.topics, topicID)
		return
	}

	state, ok := s.topics[topicID]
	if !ok {
		state = &topicState{policy: s.newPolicy()}
		s.topics[topicID] = state
	}
	state.consecutiveFailures++
	state.nextEligible = s.now().Add(state.policy.NextBackOff())
}

// Eligible reports whether the topic may be polled at the given time. Topics
// in backoff are skipped entirely for the cycle; no read is attempted.
func (s *Scheduler) Eligible(topicID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.topics[topicID]
	if !ok {
		return true
	}
	return !now.Before(state.nextEligible)
}

// NextPollTime returns the earliest time the topic may be polled. The zero
// time means the topic is eligible now.
func (s *Scheduler) NextPollTime(topicID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.topics[topicID]
	if !ok {
		return time.Time{}
	}
	return state.nextEligible
}

// ConsecutiveFailures returns the topic's current failure streak.
func (s *Scheduler) ConsecutiveFailures(topicID string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.topics[topicID]
	if !ok {
		return 0
	}
	return state.consecutiveFailures
}

// Forget drops all state for the topic. Called when its monitor stops.
func (s *Scheduler) Forget(topicID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, topicID)
}
