package topiclog

import (
	"fmt"

	monerrors "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/errors"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/jsoncodec"
)

// Envelope is the JSON payload shape shared by all operations. Only the
// fields relevant to the record's operation are populated.
type Envelope struct {
	Operation Operation `json:"op"`

	// OperatorID identifies the submitting agent ("inboundTopic@account").
	OperatorID string `json:"operator_id,omitempty"`

	// Connection confirmation fields (OpConnectionCreated).
	ConnectionTopicID    string `json:"connection_topic_id,omitempty"`
	ConnectedAccountID   string `json:"connected_account_id,omitempty"`
	ConnectionRequestSeq uint64 `json:"connection_request_seq,omitempty"`

	// Data carries the application payload for OpMessage. It may be inline
	// text or a scheme-prefixed reference to out-of-band content.
	Data string `json:"data,omitempty"`

	Memo string `json:"m,omitempty"`
}

// Encode marshals the envelope for submission.
func (e Envelope) Encode() ([]byte, error) {
	if e.Operation == "" {
		return nil, fmt.Errorf("envelope without operation: %w", monerrors.ErrMalformedRecord)
	}
	return jsoncodec.Marshal(e)
}

// DecodeEnvelope parses a record payload. Unknown or missing operations are
// reported as malformed so the caller can discard the record with a warning.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var e Envelope
	if err := jsoncodec.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", monerrors.ErrMalformedRecord)
	}
	switch e.Operation {
	case OpConnectionRequest, OpConnectionCreated, OpMessage:
		return e, nil
	default:
		return Envelope{}, fmt.Errorf("envelope operation %q: %w", e.Operation, monerrors.ErrMalformedRecord)
	}
}
