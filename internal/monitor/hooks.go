package monitor

import (
	"time"

	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/topiclog"
)

// RecordContext describes one record dispatch to hooks.
type RecordContext struct {
	// TopicID is the monitored topic the record was read from.
	TopicID string
	// Kind is the monitored topic's kind.
	Kind TopicKind
	// Sequence is the record's sequence number.
	Sequence uint64
	// Operation is the record's operation kind.
	Operation topiclog.Operation
	// SenderID is the record's sender.
	SenderID string
	// StartedAt is when dispatch began.
	StartedAt time.Time
	// Duration is how long the handler took (only set in OnRecordDone and
	// OnRecordError).
	Duration time.Duration
}

// RecordHooks defines callbacks around record dispatch.
// All hooks are optional - nil hooks are simply not called.
type RecordHooks struct {
	// OnRecordStart is called after a record is admitted, before its handler
	// runs.
	OnRecordStart func(ctx RecordContext)

	// OnRecordDone is called when the handler completes successfully.
	OnRecordDone func(ctx RecordContext)

	// OnRecordError is called when the handler (or payload resolution)
	// fails. The record is still marked complete afterwards.
	OnRecordError func(ctx RecordContext, err error)
}

// Merge combines two RecordHooks, creating a new RecordHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h RecordHooks) Merge(other RecordHooks) RecordHooks {
	return RecordHooks{
		OnRecordStart: chainStartHooks(h.OnRecordStart, other.OnRecordStart),
		OnRecordDone:  chainDoneHooks(h.OnRecordDone, other.OnRecordDone),
		OnRecordError: chainErrorHooks(h.OnRecordError, other.OnRecordError),
	}
}

func chainStartHooks(a, b func(RecordContext)) func(RecordContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx RecordContext) {
		a(ctx)
		b(ctx)
	}
}

func chainDoneHooks(a, b func(RecordContext)) func(RecordContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx RecordContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(RecordContext, error)) func(RecordContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx RecordContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h RecordHooks) start(ctx RecordContext) {
	if h.OnRecordStart != nil {
		h.OnRecordStart(ctx)
	}
}

func (h RecordHooks) done(ctx RecordContext) {
	if h.OnRecordDone != nil {
		h.OnRecordDone(ctx)
	}
}

func (h RecordHooks) fail(ctx RecordContext, err error) {
	if h.OnRecordError != nil {
		h.OnRecordError(ctx, err)
	}
}
