package topiclog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	monerrors "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/errors"
)

func TestEnvelopeEncodeDecode(t *testing.T) {
	env := Envelope{
		Operation:  OpConnectionRequest,
		OperatorID: "0.0.500@0.0.222",
		Memo:       "hello",
	}

	payload, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
}

func TestEnvelopeEncodeRequiresOperation(t *testing.T) {
	_, err := Envelope{OperatorID: "0.0.500@0.0.222"}.Encode()
	assert.ErrorIs(t, err, monerrors.ErrMalformedRecord)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("{not json"))
	assert.ErrorIs(t, err, monerrors.ErrMalformedRecord)
}

func TestDecodeEnvelopeRejectsUnknownOperation(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"op":"close_connection"}`))
	assert.ErrorIs(t, err, monerrors.ErrMalformedRecord)
}

func TestDecodeEnvelopeConfirmationFields(t *testing.T) {
	payload := []byte(`{"op":"connection_created","connection_topic_id":"0.0.1001","connected_account_id":"0.0.222","connection_request_seq":4}`)

	env, err := DecodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, OpConnectionCreated, env.Operation)
	assert.Equal(t, "0.0.1001", env.ConnectionTopicID)
	assert.Equal(t, "0.0.222", env.ConnectedAccountID)
	assert.Equal(t, uint64(4), env.ConnectionRequestSeq)
}
