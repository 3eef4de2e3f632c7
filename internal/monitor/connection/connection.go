// Package connection turns inbound connection proposals into established
// bidirectional channels and drives outbound proposals to completion.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	monerrors "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/errors"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/ids"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/logging"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/topiclog"
)

// State is the lifecycle position of a negotiated connection.
type State string

const (
	StateProposed    State = "proposed"
	StateConfirmed   State = "confirmed"
	StateEstablished State = "established"
	StateFailed      State = "failed"
)

// ActiveConnection is a negotiated channel to another agent. Owned
// exclusively by the Negotiator; callers receive copies. Terminal states are
// retained for the lifetime of the process for idempotence checks.
type ActiveConnection struct {
	TargetAccountID      string
	TargetInboundTopicID string
	ConnectionTopicID    string

	// RequestSequence is the sequence number of the ConnectionRequest record
	// this connection answers, on the topic it was proposed on.
	RequestSequence uint64

	Status    State
	CreatedAt time.Time
}

// Options tunes the outbound confirmation wait.
type Options struct {
	// ConfirmationAttempts bounds how many confirmation polls an outbound
	// proposal waits before failing.
	ConfirmationAttempts int

	// BaseBackoff / MaxBackoff bound the delay between confirmation polls
	// when the target topic rate-limits reads.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Sleep overrides the wait between confirmation polls. Test hook.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Negotiator owns the connection state machine for one agent.
type Negotiator struct {
	client topiclog.Client
	logger logging.ServiceLogger
	opts   Options

	accountID      string
	inboundTopicID string

	mu sync.Mutex
	// processedRequests is the session-scoped idempotence guard, keyed by
	// proposal sequence number. It backs up the log-based history check when
	// reads have transient gaps.
	processedRequests map[uint64]struct{}
	connections       []*ActiveConnection
	byTopic           map[string]*ActiveConnection
}

// NewNegotiator builds a negotiator for the local agent identified by
// accountID with the given public inbound topic.
func NewNegotiator(client topiclog.Client, logger logging.ServiceLogger, accountID, inboundTopicID string, opts Options) *Negotiator {
	if opts.ConfirmationAttempts <= 0 {
		opts.ConfirmationAttempts = 8
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 60 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 300 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Negotiator{
		client:            client,
		logger:            logger,
		opts:              opts,
		accountID:         accountID,
		inboundTopicID:    inboundTopicID,
		processedRequests: make(map[uint64]struct{}),
		byTopic:           make(map[string]*ActiveConnection),
	}
}

// OperatorID returns the local agent's canonical operator id.
func (n *Negotiator) OperatorID() string {
	return topiclog.FormatOperatorID(n.inboundTopicID, n.accountID)
}

// HandleProposal processes an inbound ConnectionRequest record observed on
// the inbound topic. history is the full batch read of that topic; a
// ConnectionCreated record already referencing the proposal short-circuits
// with ErrAlreadyHandled so restarts never create duplicate channels.
func (n *Negotiator) HandleProposal(ctx context.Context, rec topiclog.Record, history []topiclog.Record) (*ActiveConnection, error) {
	if rec.Operation != topiclog.OpConnectionRequest {
		return nil, fmt.Errorf("operation %s is not a connection request: %w", rec.Operation, monerrors.ErrMalformedRecord)
	}

	n.mu.Lock()
	_, seen := n.processedRequests[rec.SequenceNumber]
	n.mu.Unlock()
	if seen {
		return nil, monerrors.ErrAlreadyHandled
	}

	if confirmed := findConfirmation(history, rec.SequenceNumber); confirmed != nil {
		n.markProcessed(rec.SequenceNumber)
		return nil, monerrors.ErrAlreadyHandled
	}

	// The proposer's identity travels in the sender field as
	// "inboundTopic@account". Malformed proposals from misbehaving peers are
	// discarded, never fatal.
	proposerInbound, proposerAccount, err := topiclog.ParseOperatorID(rec.SenderID)
	if err != nil {
		n.logger.Warn("discarding proposal with malformed operator id", logging.LogFields{
			"sender_id": rec.SenderID,
			"sequence":  rec.SequenceNumber,
		})
		n.markProcessed(rec.SequenceNumber)
		return nil, err
	}

	connectionTopicID, err := n.client.CreateTopic(ctx)
	if err != nil {
		return n.registerFailed(rec, proposerAccount, proposerInbound, fmt.Errorf("create connection topic: %w", err))
	}

	confirmation := topiclog.Envelope{
		Operation:            topiclog.OpConnectionCreated,
		OperatorID:           n.OperatorID(),
		ConnectionTopicID:    connectionTopicID,
		ConnectedAccountID:   proposerAccount,
		ConnectionRequestSeq: rec.SequenceNumber,
	}
	payload, err := confirmation.Encode()
	if err != nil {
		return n.registerFailed(rec, proposerAccount, proposerInbound, err)
	}
	if _, err := n.client.Append(ctx, n.inboundTopicID, payload); err != nil {
		return n.registerFailed(rec, proposerAccount, proposerInbound, fmt.Errorf("append confirmation: %w", err))
	}

	conn := &ActiveConnection{
		TargetAccountID:      proposerAccount,
		TargetInboundTopicID: proposerInbound,
		ConnectionTopicID:    connectionTopicID,
		RequestSequence:      rec.SequenceNumber,
		Status:               StateEstablished,
		CreatedAt:            time.Now(),
	}
	n.register(conn)
	n.markProcessed(rec.SequenceNumber)

	n.logger.Info("connection established from inbound proposal", logging.LogFields{
		"target_account":   proposerAccount,
		"connection_topic": connectionTopicID,
		"request_sequence": rec.SequenceNumber,
	})
	return snapshot(conn), nil
}

// InitiateOutbound appends a ConnectionRequest to the target's inbound topic
// and waits, with bounded jittered polls, for a matching ConnectionCreated
// record. On timeout the returned connection carries StateFailed alongside
// ErrConnectionTimeout; the engine never retries automatically.
func (n *Negotiator) InitiateOutbound(ctx context.Context, targetAccountID, targetInboundTopicID string) (*ActiveConnection, error) {
	request := topiclog.Envelope{
		Operation:  topiclog.OpConnectionRequest,
		OperatorID: n.OperatorID(),
		Memo:       ids.CreateULID(),
	}
	payload, err := request.Encode()
	if err != nil {
		return nil, err
	}

	requestSeq, err := n.client.Append(ctx, targetInboundTopicID, payload)
	if err != nil {
		return nil, fmt.Errorf("append connection request: %w", err)
	}

	conn := &ActiveConnection{
		TargetAccountID:      targetAccountID,
		TargetInboundTopicID: targetInboundTopicID,
		RequestSequence:      requestSeq,
		Status:               StateProposed,
		CreatedAt:            time.Now(),
	}

	policy := n.newBackoffPolicy()
	for attempt := 0; attempt < n.opts.ConfirmationAttempts; attempt++ {
		records, err := n.client.ReadSince(ctx, targetInboundTopicID, requestSeq)
		switch {
		case err == nil:
			if confirmed := findConfirmation(records, requestSeq); confirmed != nil {
				conn.ConnectionTopicID = confirmed.ConnectionTopicID
				conn.Status = StateEstablished
				n.register(conn)
				n.logger.Info("outbound connection confirmed", logging.LogFields{
					"target_account":   targetAccountID,
					"connection_topic": conn.ConnectionTopicID,
					"request_sequence": requestSeq,
				})
				return snapshot(conn), nil
			}
			// A clean read without a confirmation resets the backoff, same
			// discipline as the poll loops.
			policy.Reset()
		case errors.Is(err, monerrors.ErrRateLimited):
			// Next wait grows exponentially.
		default:
			n.logger.Warn("confirmation poll failed", logging.LogFields{
				"target_inbound": targetInboundTopicID,
				"error":          err.Error(),
			})
		}

		if err := n.opts.Sleep(ctx, policy.NextBackOff()); err != nil {
			conn.Status = StateFailed
			n.register(conn)
			return snapshot(conn), fmt.Errorf("confirmation wait: %w", err)
		}
	}

	conn.Status = StateFailed
	n.register(conn)
	return snapshot(conn), fmt.Errorf("no confirmation after %d attempts: %w",
		n.opts.ConfirmationAttempts, monerrors.ErrConnectionTimeout)
}

// Connections returns a snapshot of every tracked connection in insertion
// order, terminal states included.
func (n *Negotiator) Connections() []*ActiveConnection {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]*ActiveConnection, 0, len(n.connections))
	for _, conn := range n.connections {
		out = append(out, snapshot(conn))
	}
	return out
}

// Connection looks up the connection bound to connectionTopicID.
func (n *Negotiator) Connection(connectionTopicID string) (*ActiveConnection, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	conn, ok := n.byTopic[connectionTopicID]
	if !ok {
		return nil, false
	}
	return snapshot(conn), true
}

func (n *Negotiator) newBackoffPolicy() *backoff.ExponentialBackOff {
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = n.opts.BaseBackoff
	p.Multiplier = 2
	p.MaxInterval = n.opts.MaxBackoff
	p.RandomizationFactor = 0.3
	p.Reset()
	return p
}

func (n *Negotiator) registerFailed(rec topiclog.Record, account, inbound string, cause error) (*ActiveConnection, error) {
	conn := &ActiveConnection{
		TargetAccountID:      account,
		TargetInboundTopicID: inbound,
		RequestSequence:      rec.SequenceNumber,
		Status:               StateFailed,
		CreatedAt:            time.Now(),
	}
	n.register(conn)
	n.markProcessed(rec.SequenceNumber)
	return snapshot(conn), cause
}

func (n *Negotiator) register(conn *ActiveConnection) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.connections = append(n.connections, conn)
	if conn.ConnectionTopicID != "" {
		n.byTopic[conn.ConnectionTopicID] = conn
	}
}

func (n *Negotiator) markProcessed(sequence uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.processedRequests[sequence] = struct{}{}
}

// findConfirmation scans records for a ConnectionCreated envelope that
// references requestSeq.
func findConfirmation(records []topiclog.Record, requestSeq uint64) *topiclog.Envelope {
	for _, rec := range records {
		if rec.Operation != topiclog.OpConnectionCreated {
			continue
		}
		env, err := topiclog.DecodeEnvelope(rec.Payload)
		if err != nil {
			continue
		}
		if env.ConnectionRequestSeq == requestSeq {
			return &env
		}
	}
	return nil
}

func snapshot(conn *ActiveConnection) *ActiveConnection {
	copy := *conn
	return &copy
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
