// Package dedup is the sole authority on "new" for polled topic records.
//
// Some substrate channels only support "list all" reads, so overlapping
// record sets across poll cycles are the normal case. The deduplicator owns
// one cursor per monitored topic and guarantees that a sequence number is
// dispatched to application handlers at most once per monitoring session.
package dedup

import (
	"sync"
	"time"

	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/topiclog"
)

// Cursor is the per-topic dedup state. Owned by the Deduplicator; reset only
// when monitoring of the topic restarts.
type Cursor struct {
	lastSequence uint64
	watermark    time.Time
	processed    map[uint64]struct{}
	inFlight     map[uint64]struct{}
}

func newCursor() *Cursor {
	return &Cursor{
		processed: make(map[uint64]struct{}),
		inFlight:  make(map[uint64]struct{}),
	}
}

// Deduplicator tracks processed and in-flight record ids per topic.
type Deduplicator struct {
	mu             sync.Mutex
	cursors        map[string]*Cursor
	localAccountID string
}

// NewDeduplicator builds a deduplicator. Records sent by localAccountID are
// never admitted; agents must not handle their own submissions.
func NewDeduplicator(localAccountID string) *Deduplicator {
	return &Deduplicator{
		cursors:        make(map[string]*Cursor),
		localAccountID: localAccountID,
	}
}

func (d *Deduplicator) cursor(topicID string) *Cursor {
	c, ok := d.cursors[topicID]
	if !ok {
		c = newCursor()
		d.cursors[topicID] = c
	}
	return c
}

// Admit reports whether the record should be dispatched. Connection
// confirmations are lifecycle records consumed from batch history by the
// negotiator, never dispatched, so they are refused here.
func (d *Deduplicator) Admit(topicID string, rec topiclog.Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec.Operation == topiclog.OpConnectionCreated {
		return false
	}
	if topiclog.AccountOf(rec.SenderID) == d.localAccountID {
		return false
	}

	// Admission is keyed on record ids, not the watermark: records at or
	// before the watermark with an unseen id are still admitted, since batch
	// reads routinely return equal timestamps.
	c := d.cursor(topicID)
	if _, ok := c.processed[rec.SequenceNumber]; ok {
		return false
	}
	if _, ok := c.inFlight[rec.SequenceNumber]; ok {
		return false
	}
	return true
}

// MarkInFlight reserves the record id so a concurrent poll of the same topic
// cannot re-dispatch it while its handler is still running.
func (d *Deduplicator) MarkInFlight(topicID string, sequence uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.cursor(topicID)
	c.inFlight[sequence] = struct{}{}
}

// MarkComplete moves the id from in-flight to processed and advances the
// watermark. Called after the handler returns, successfully or not; failed
// handlers still consume the record (at-most-once local handling).
func (d *Deduplicator) MarkComplete(topicID string, rec topiclog.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.cursor(topicID)
	delete(c.inFlight, rec.SequenceNumber)
	c.processed[rec.SequenceNumber] = struct{}{}
	if rec.CreatedAt.After(c.watermark) {
		c.watermark = rec.CreatedAt
	}
}

// ObserveSequence records the highest sequence number seen for the topic,
// admitted or not, so incremental reads can start past it.
func (d *Deduplicator) ObserveSequence(topicID string, sequence uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.cursor(topicID)
	if sequence > c.lastSequence {
		c.lastSequence = sequence
	}
}

// LastSequence returns the highest sequence number observed for the topic.
func (d *Deduplicator) LastSequence(topicID string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.cursors[topicID]
	if !ok {
		return 0
	}
	return c.lastSequence
}

// Watermark returns the topic's completion watermark. Monotonically
// non-decreasing; only advanced by MarkComplete.
func (d *Deduplicator) Watermark(topicID string) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.cursors[topicID]
	if !ok {
		return time.Time{}
	}
	return c.watermark
}

// Reset drops the topic's cursor. Called when monitoring of the topic
// restarts.
func (d *Deduplicator) Reset(topicID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cursors, topicID)
}
