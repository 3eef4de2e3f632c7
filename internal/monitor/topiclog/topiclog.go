// Package topiclog defines the engine's view of the external topic log
// substrate: ordered, append-only, per-topic record sequences read by
// polling. The substrate itself (consensus, signing, identity registration)
// is out of scope; the engine only consumes the Client interface.
package topiclog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	monerrors "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/errors"
)

// Operation identifies what a record means to the connection layer.
type Operation string

const (
	OpConnectionRequest Operation = "connection_request"
	OpConnectionCreated Operation = "connection_created"
	OpMessage           Operation = "message"
)

// Record is one entry in a topic log. Immutable once read.
type Record struct {
	// SequenceNumber is assigned by the substrate, monotonic and unique per
	// topic.
	SequenceNumber uint64

	Operation Operation

	// SenderID identifies the submitting agent, in operator-id form
	// "inboundTopic@account" when the sender published one.
	SenderID string

	CreatedAt time.Time

	Payload []byte
}

// Client is the append/read surface of the external topic log service.
//
// ReadSince is optional sugar; implementations backed by "list all" style
// APIs may return overlapping or complete record sets and callers must
// tolerate already-seen records.
type Client interface {
	// Append submits a payload to the topic and returns the assigned
	// sequence number. Fails with ErrSubmitFailed (or ErrRateLimited).
	Append(ctx context.Context, topicID string, payload []byte) (uint64, error)

	// ReadAll returns every record of the topic in sequence order.
	ReadAll(ctx context.Context, topicID string) ([]Record, error)

	// ReadSince returns records with sequence numbers strictly greater than
	// sinceSequence, in sequence order.
	ReadSince(ctx context.Context, topicID string, sinceSequence uint64) ([]Record, error)

	// FetchContent resolves a reference to out-of-band stored content.
	FetchContent(ctx context.Context, reference string) ([]byte, error)

	// StoreContent stores content out of band and returns its reference.
	StoreContent(ctx context.Context, content []byte) (string, error)

	// CreateTopic provisions a fresh topic and returns its id. Used when
	// confirming a connection proposal.
	CreateTopic(ctx context.Context) (string, error)
}

// ParseOperatorID splits an operator id of the form "inboundTopic@account".
func ParseOperatorID(operatorID string) (inboundTopicID, accountID string, err error) {
	parts := strings.Split(operatorID, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("operator id %q: %w", operatorID, monerrors.ErrMalformedRecord)
	}
	return parts[0], parts[1], nil
}

// FormatOperatorID builds the canonical "inboundTopic@account" operator id.
func FormatOperatorID(inboundTopicID, accountID string) string {
	return inboundTopicID + "@" + accountID
}

// AccountOf returns the account part of a sender id, tolerating bare account
// ids without the topic prefix.
func AccountOf(senderID string) string {
	if _, account, err := ParseOperatorID(senderID); err == nil {
		return account
	}
	return senderID
}

// SortRecords orders records by ascending sequence number, ties broken by
// CreatedAt. Dispatch order depends on it.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].SequenceNumber != records[j].SequenceNumber {
			return records[i].SequenceNumber < records[j].SequenceNumber
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
