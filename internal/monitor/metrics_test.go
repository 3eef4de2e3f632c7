package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollMetricsRegisterIsIdempotent(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPollMetrics(registry)

	require.NoError(t, m.Register())
	require.NoError(t, m.Register())
}

func TestPollMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPollMetrics(registry)
	require.NoError(t, m.Register())

	m.RecordPoll("0.0.5", true)
	m.RecordPoll("0.0.5", true)
	m.RecordPoll("0.0.5", false)
	m.RecordAdmitted("0.0.5")
	m.RecordRefused("0.0.5")
	m.RecordRefused("0.0.5")
	m.RecordHandlerFailure("0.0.5")
	m.RecordRateLimited("0.0.5")
	m.RecordBackoffSkip("0.0.5")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.pollsTotal.WithLabelValues("0.0.5", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pollsTotal.WithLabelValues("0.0.5", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.recordsAdmitted.WithLabelValues("0.0.5")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.recordsRefused.WithLabelValues("0.0.5")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.handlerFailures.WithLabelValues("0.0.5")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rateLimited.WithLabelValues("0.0.5")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.backoffSkips.WithLabelValues("0.0.5")))

	stats := m.GetTopicStats("0.0.5")
	require.NotNil(t, stats)
	assert.Equal(t, uint64(3), stats.Polls)
	assert.Equal(t, uint64(1), stats.RecordsAdmitted)
	assert.Equal(t, uint64(2), stats.RecordsRefused)
	assert.Equal(t, uint64(1), stats.HandlerFailures)
	assert.Equal(t, uint64(1), stats.RateLimited)
	assert.Equal(t, uint64(1), stats.BackoffSkips)
	assert.False(t, stats.LastPolledAt.IsZero())
}

func TestPollMetricsSnapshotAggregatesTopics(t *testing.T) {
	m := NewPollMetrics(prometheus.NewRegistry())

	m.RecordPoll("0.0.5", true)
	m.RecordAdmitted("0.0.5")
	m.RecordPoll("0.0.6", true)
	m.RecordHandlerFailure("0.0.6")

	snapshot := m.GetSnapshot()
	assert.Equal(t, uint64(2), snapshot.TotalPolls)
	assert.Equal(t, uint64(1), snapshot.TotalAdmitted)
	assert.Equal(t, uint64(1), snapshot.TotalFailures)
	assert.Len(t, snapshot.TopicStats, 2)
	assert.False(t, snapshot.CollectedAt.IsZero())

	// Snapshots are copies; mutating them never touches live counters.
	snapshot.TopicStats["0.0.5"].Polls = 99
	assert.Equal(t, uint64(1), m.GetTopicStats("0.0.5").Polls)
}

func TestPollMetricsUnknownTopic(t *testing.T) {
	m := NewPollMetrics(prometheus.NewRegistry())
	assert.Nil(t, m.GetTopicStats("0.0.404"))
}

func TestPollMetricsReset(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPollMetrics(registry)
	require.NoError(t, m.Register())

	m.RecordPoll("0.0.5", true)
	m.RecordAdmitted("0.0.5")
	m.Reset()

	assert.Nil(t, m.GetTopicStats("0.0.5"))
	assert.Zero(t, m.GetSnapshot().TotalPolls)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.recordsAdmitted.WithLabelValues("0.0.5")))
}
