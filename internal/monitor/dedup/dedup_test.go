package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/topiclog"
)

const localAccount = "0.0.111"

func msgRecord(seq uint64, sender string, at time.Time) topiclog.Record {
	return topiclog.Record{
		SequenceNumber: seq,
		Operation:      topiclog.OpMessage,
		SenderID:       sender,
		CreatedAt:      at,
	}
}

func TestOverlappingBatchesAdmitOnce(t *testing.T) {
	d := NewDeduplicator(localAccount)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	batch := []topiclog.Record{
		msgRecord(1, "0.0.500@0.0.222", base),
		msgRecord(2, "0.0.500@0.0.222", base.Add(time.Second)),
		msgRecord(3, "0.0.500@0.0.222", base.Add(2*time.Second)),
	}

	admitted := 0
	for cycle := 0; cycle < 3; cycle++ {
		for _, rec := range batch {
			if !d.Admit("0.0.5", rec) {
				continue
			}
			admitted++
			d.MarkInFlight("0.0.5", rec.SequenceNumber)
			d.MarkComplete("0.0.5", rec)
		}
	}

	assert.Equal(t, len(batch), admitted)
}

func TestRefusesOwnSubmissions(t *testing.T) {
	d := NewDeduplicator(localAccount)
	at := time.Now()

	assert.False(t, d.Admit("0.0.5", msgRecord(1, "0.0.500@"+localAccount, at)))
	assert.False(t, d.Admit("0.0.5", msgRecord(2, localAccount, at)))
	assert.True(t, d.Admit("0.0.5", msgRecord(3, "0.0.500@0.0.222", at)))
}

func TestRefusesLifecycleRecords(t *testing.T) {
	d := NewDeduplicator(localAccount)

	rec := topiclog.Record{
		SequenceNumber: 1,
		Operation:      topiclog.OpConnectionCreated,
		SenderID:       "0.0.500@0.0.222",
		CreatedAt:      time.Now(),
	}
	assert.False(t, d.Admit("0.0.5", rec))
}

func TestInFlightBlocksReadmission(t *testing.T) {
	d := NewDeduplicator(localAccount)
	rec := msgRecord(7, "0.0.500@0.0.222", time.Now())

	require.True(t, d.Admit("0.0.5", rec))
	d.MarkInFlight("0.0.5", rec.SequenceNumber)

	assert.False(t, d.Admit("0.0.5", rec), "in-flight record must not be re-admitted")

	d.MarkComplete("0.0.5", rec)
	assert.False(t, d.Admit("0.0.5", rec), "completed record must not be re-admitted")
}

func TestWatermarkAdvancesMonotonically(t *testing.T) {
	d := NewDeduplicator(localAccount)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, d.Watermark("0.0.5").IsZero())

	late := msgRecord(2, "0.0.500@0.0.222", base.Add(time.Minute))
	early := msgRecord(1, "0.0.500@0.0.222", base)

	d.MarkInFlight("0.0.5", late.SequenceNumber)
	d.MarkComplete("0.0.5", late)
	assert.Equal(t, base.Add(time.Minute), d.Watermark("0.0.5"))

	// An out-of-order completion never moves the watermark backwards.
	d.MarkInFlight("0.0.5", early.SequenceNumber)
	d.MarkComplete("0.0.5", early)
	assert.Equal(t, base.Add(time.Minute), d.Watermark("0.0.5"))
}

func TestAdmitIsIDKeyedNotWatermarkKeyed(t *testing.T) {
	d := NewDeduplicator(localAccount)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := msgRecord(2, "0.0.500@0.0.222", at)
	d.MarkInFlight("0.0.5", first.SequenceNumber)
	d.MarkComplete("0.0.5", first)

	// Same timestamp as the watermark, unseen id: still admitted.
	sibling := msgRecord(1, "0.0.500@0.0.222", at)
	assert.True(t, d.Admit("0.0.5", sibling))
}

func TestObserveSequenceTracksHighWater(t *testing.T) {
	d := NewDeduplicator(localAccount)

	assert.Zero(t, d.LastSequence("0.0.5"))

	d.ObserveSequence("0.0.5", 3)
	d.ObserveSequence("0.0.5", 9)
	d.ObserveSequence("0.0.5", 5)

	assert.Equal(t, uint64(9), d.LastSequence("0.0.5"))
	assert.Zero(t, d.LastSequence("0.0.6"), "topics keep independent cursors")
}

func TestResetDropsCursor(t *testing.T) {
	d := NewDeduplicator(localAccount)
	rec := msgRecord(1, "0.0.500@0.0.222", time.Now())

	require.True(t, d.Admit("0.0.5", rec))
	d.MarkInFlight("0.0.5", rec.SequenceNumber)
	d.MarkComplete("0.0.5", rec)
	d.ObserveSequence("0.0.5", rec.SequenceNumber)

	d.Reset("0.0.5")

	assert.True(t, d.Admit("0.0.5", rec))
	assert.Zero(t, d.LastSequence("0.0.5"))
	assert.True(t, d.Watermark("0.0.5").IsZero())
}
