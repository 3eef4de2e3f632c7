// Package errors defines the error taxonomy shared by the monitoring engine.
//
// The sentinels split failures into the classes the poll loop cares about:
// rate limiting (drives backoff), transport failures (cycle skipped), and
// per-record conditions that must never stop a topic's loop.
package errors

import (
	"fmt"

	sterrors "errors"
)

var (
	// ErrRateLimited marks a read or append rejected by the substrate's rate
	// limiter. Retryable; the backoff scheduler decides when.
	ErrRateLimited = sterrors.New("lynxagent: rate limited by topic log service")

	// ErrReadFailed marks a non-rate-limit read failure. The poll cycle is
	// skipped and the loop continues.
	ErrReadFailed = sterrors.New("lynxagent: topic read failed")

	// ErrSubmitFailed marks a failed append to a topic log.
	ErrSubmitFailed = sterrors.New("lynxagent: topic submit failed")

	// ErrAlreadyHandled is the idempotence short-circuit: the proposal (or
	// record) was already processed. Not a failure.
	ErrAlreadyHandled = sterrors.New("lynxagent: already handled")

	// ErrMalformedRecord marks a record that cannot be interpreted. It is
	// logged and discarded without stopping monitoring.
	ErrMalformedRecord = sterrors.New("lynxagent: malformed record")

	// ErrPayloadResolutionFailed marks a failed fetch of out-of-band content
	// referenced by a message payload.
	ErrPayloadResolutionFailed = sterrors.New("lynxagent: payload resolution failed")

	// ErrConnectionTimeout is returned when an outbound connection proposal is
	// not confirmed within the bounded retry budget.
	ErrConnectionTimeout = sterrors.New("lynxagent: connection confirmation timed out")

	ErrClientRequired  = sterrors.New("lynxagent: topic log client is required")
	ErrConfigRequired  = sterrors.New("lynxagent: config is required")
	ErrLoggerRequired  = sterrors.New("lynxagent: logger is required")
	ErrHandlerRequired = sterrors.New("lynxagent: handler function is required")
	ErrTopicRequired   = sterrors.New("lynxagent: topic id is required")
)

// RecordError attaches topic and sequence context to a per-record failure so
// callers can log it without re-deriving where it came from.
type RecordError struct {
	TopicID  string
	Sequence uint64
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d on topic %s: %v", e.Sequence, e.TopicID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// NewRecordError wraps err with the record's coordinates. Returns nil when
// err is nil.
func NewRecordError(topicID string, sequence uint64, err error) error {
	if err == nil {
		return nil
	}
	return &RecordError{TopicID: topicID, Sequence: sequence, Err: err}
}
