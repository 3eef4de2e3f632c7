package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PollMetrics tracks poll cycle and dispatch statistics per monitored topic,
// exposed both as Prometheus collectors and as an in-memory snapshot.
type PollMetrics struct {
	mu sync.RWMutex

	topicStats map[string]*TopicPollStats

	pollsTotal      *prometheus.CounterVec
	recordsAdmitted *prometheus.CounterVec
	recordsRefused  *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	backoffSkips    *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// TopicPollStats holds cumulative counters for one monitored topic.
type TopicPollStats struct {
	Polls           uint64    `json:"polls"`
	RecordsAdmitted uint64    `json:"records_admitted"`
	RecordsRefused  uint64    `json:"records_refused"`
	HandlerFailures uint64    `json:"handler_failures"`
	RateLimited     uint64    `json:"rate_limited"`
	BackoffSkips    uint64    `json:"backoff_skips"`
	LastPolledAt    time.Time `json:"last_polled_at,omitempty"`
}

// PollMetricsSnapshot provides a point-in-time view across topics.
type PollMetricsSnapshot struct {
	TotalPolls    uint64                     `json:"total_polls"`
	TotalAdmitted uint64                     `json:"total_admitted"`
	TotalFailures uint64                     `json:"total_failures"`
	TopicStats    map[string]*TopicPollStats `json:"topic_stats"`
	CollectedAt   time.Time                  `json:"collected_at"`
}

func newPollCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lynxagent",
			Subsystem: "monitor",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewPollMetrics creates a poll metrics collector.
func NewPollMetrics(registerer prometheus.Registerer) *PollMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PollMetrics{
		topicStats:      make(map[string]*TopicPollStats),
		registerer:      registerer,
		pollsTotal:      newPollCounterVec("polls_total", "Total poll cycles that issued a read", []string{"topic", "outcome"}),
		recordsAdmitted: newPollCounterVec("records_admitted_total", "Records admitted by the deduplicator and dispatched", []string{"topic"}),
		recordsRefused:  newPollCounterVec("records_refused_total", "Records refused by the deduplicator (duplicates, own sends, lifecycle)", []string{"topic"}),
		handlerFailures: newPollCounterVec("handler_failures_total", "Dispatches whose handler or payload resolution failed", []string{"topic"}),
		rateLimited:     newPollCounterVec("rate_limited_total", "Reads rejected by the substrate's rate limiter", []string{"topic"}),
		backoffSkips:    newPollCounterVec("backoff_skips_total", "Poll cycles skipped because the topic was in backoff", []string{"topic"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *PollMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.pollsTotal,
		m.recordsAdmitted,
		m.recordsRefused,
		m.handlerFailures,
		m.rateLimited,
		m.backoffSkips,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordPoll records a completed read attempt for the topic.
func (m *PollMetrics) RecordPoll(topicID string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateTopicStats(topicID)
	stats.Polls++
	stats.LastPolledAt = time.Now()

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.pollsTotal.WithLabelValues(topicID, outcome).Inc()
}

// RecordAdmitted records a record dispatched to a handler.
func (m *PollMetrics) RecordAdmitted(topicID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreateTopicStats(topicID).RecordsAdmitted++
	m.recordsAdmitted.WithLabelValues(topicID).Inc()
}

// RecordRefused records a record the deduplicator refused.
func (m *PollMetrics) RecordRefused(topicID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreateTopicStats(topicID).RecordsRefused++
	m.recordsRefused.WithLabelValues(topicID).Inc()
}

// RecordHandlerFailure records a failed dispatch.
func (m *PollMetrics) RecordHandlerFailure(topicID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreateTopicStats(topicID).HandlerFailures++
	m.handlerFailures.WithLabelValues(topicID).Inc()
}

// RecordRateLimited records a read rejected by the rate limiter.
func (m *PollMetrics) RecordRateLimited(topicID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreateTopicStats(topicID).RateLimited++
	m.rateLimited.WithLabelValues(topicID).Inc()
}

// RecordBackoffSkip records a cycle skipped while the topic was in backoff.
func (m *PollMetrics) RecordBackoffSkip(topicID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreateTopicStats(topicID).BackoffSkips++
	m.backoffSkips.WithLabelValues(topicID).Inc()
}

// GetSnapshot returns a point-in-time snapshot of all poll metrics.
func (m *PollMetrics) GetSnapshot() PollMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := PollMetricsSnapshot{
		TopicStats:  make(map[string]*TopicPollStats),
		CollectedAt: time.Now(),
	}

	for topic, stats := range m.topicStats {
		statsCopy := *stats
		snapshot.TopicStats[topic] = &statsCopy
		snapshot.TotalPolls += stats.Polls
		snapshot.TotalAdmitted += stats.RecordsAdmitted
		snapshot.TotalFailures += stats.HandlerFailures
	}

	return snapshot
}

// GetTopicStats returns stats for a specific topic, or nil when the topic was
// never polled.
func (m *PollMetrics) GetTopicStats(topicID string) *TopicPollStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stats, ok := m.topicStats[topicID]; ok {
		statsCopy := *stats
		return &statsCopy
	}
	return nil
}

func (m *PollMetrics) getOrCreateTopicStats(topicID string) *TopicPollStats {
	if stats, ok := m.topicStats[topicID]; ok {
		return stats
	}
	stats := &TopicPollStats{}
	m.topicStats[topicID] = stats
	return stats
}

// Reset resets all metrics (useful for testing).
func (m *PollMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topicStats = make(map[string]*TopicPollStats)
	m.pollsTotal.Reset()
	m.recordsAdmitted.Reset()
	m.recordsRefused.Reset()
	m.handlerFailures.Reset()
	m.rateLimited.Reset()
	m.backoffSkips.Reset()
}
