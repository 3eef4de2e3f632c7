// Package monitor implements the connection and message monitoring engine:
// per-topic poll loops that turn inbound connection proposals into
// established channels and deliver deduplicated application messages to
// handlers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/backoff"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/config"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/connection"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/content"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/dedup"
	monerrors "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/errors"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/logging"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/topiclog"
)

// TopicKind selects how admitted records on a monitored topic are routed.
// Inbound-request topics and connection topics share one loop implementation;
// only the routing differs.
type TopicKind string

const (
	// KindInbound marks the agent's public topic for connection proposals.
	KindInbound TopicKind = "inbound"
	// KindConnection marks a negotiated per-connection topic.
	KindConnection TopicKind = "connection"
)

// Handler receives an admitted record together with its resolved payload.
// Returned errors are recoverable by definition: they are logged, reported
// through hooks, and the record is still marked complete.
type Handler func(ctx context.Context, rec topiclog.Record, payload []byte) error

// Dependencies holds the optional collaborators of a Monitor. Leave fields
// nil to use the built-in implementations.
type Dependencies struct {
	// Hooks are invoked around every record dispatch.
	Hooks RecordHooks

	// Registerer receives the Prometheus collectors when metrics are
	// enabled. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// OnConnectionEstablished is called whenever an inbound proposal has
	// been turned into an established connection. Typical use: start
	// monitoring the new connection topic.
	OnConnectionEstablished func(conn *connection.ActiveConnection)

	// Scheduler and Deduplicator overrides, mainly for tests.
	Scheduler    *backoff.Scheduler
	Deduplicator *dedup.Deduplicator
}

// Monitor owns the poll loops of all monitored topics. One independent loop
// runs per topic; loops share no mutable state except the scheduler and the
// deduplicator, both of which serialize access internally.
type Monitor struct {
	Conf   config.Config
	Logger logging.ServiceLogger

	client     topiclog.Client
	sched      *backoff.Scheduler
	dedup      *dedup.Deduplicator
	negotiator *connection.Negotiator
	resolver   *content.Resolver
	publisher  *content.Publisher

	hooks   RecordHooks
	metrics *PollMetrics
	tracer  trace.Tracer

	onEstablished func(conn *connection.ActiveConnection)

	mu    sync.Mutex
	loops map[string]*topicLoop

	now func() time.Time
}

type topicLoop struct {
	topicID string
	kind    TopicKind
	handler Handler

	cancel context.CancelFunc
	done   chan struct{}

	// polling is the per-topic poll-in-progress guard: one topic is never
	// polled by two concurrent invocations, while other topics proceed
	// independently.
	polling atomic.Bool
}

// TryNewMonitor constructs a Monitor for the supplied configuration.
// Configuration problems are the only fatal startup errors.
func TryNewMonitor(conf *config.Config, log logging.ServiceLogger, client topiclog.Client, deps Dependencies) (*Monitor, error) {
	if conf == nil {
		return nil, monerrors.ErrConfigRequired
	}
	if log == nil {
		return nil, monerrors.ErrLoggerRequired
	}
	if client == nil {
		return nil, monerrors.ErrClientRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	normalized := conf.Normalized()
	log.Info("creating monitoring engine", logging.LogFields{
		"account_id":    normalized.AccountID,
		"inbound_topic": normalized.InboundTopicID,
		"config":        normalized.String(),
	})

	sched := deps.Scheduler
	if sched == nil {
		sched = backoff.NewScheduler(normalized.BaseBackoff, normalized.MaxBackoff)
	}
	dedupe := deps.Deduplicator
	if dedupe == nil {
		dedupe = dedup.NewDeduplicator(normalized.AccountID)
	}

	m := &Monitor{
		Conf:   normalized,
		Logger: log,
		client: client,
		sched:  sched,
		dedup:  dedupe,
		negotiator: connection.NewNegotiator(client, log, normalized.AccountID, normalized.InboundTopicID, connection.Options{
			ConfirmationAttempts: normalized.ConfirmationAttempts,
			BaseBackoff:          normalized.BaseBackoff,
			MaxBackoff:           normalized.MaxBackoff,
		}),
		resolver:      content.NewResolver(client),
		publisher:     content.NewPublisher(client, normalized.InlinePayloadLimit),
		hooks:         deps.Hooks,
		tracer:        otel.Tracer("lynxagent-monitor"),
		onEstablished: deps.OnConnectionEstablished,
		loops:         make(map[string]*topicLoop),
		now:           time.Now,
	}

	if normalized.MetricsEnabled {
		m.metrics = NewPollMetrics(deps.Registerer)
		if err := m.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return m, nil
}

// NewMonitor is like TryNewMonitor but panics on configuration errors.
func NewMonitor(conf *config.Config, log logging.ServiceLogger, client topiclog.Client, deps Dependencies) *Monitor {
	m, err := TryNewMonitor(conf, log, client, deps)
	if err != nil {
		panic(err)
	}
	return m
}

// StartMonitoring launches the poll loop for topicID. Adding a topic never
// disturbs the loops of other topics. The handler is required for connection
// topics; on inbound topics it receives plain messages while proposals are
// routed to the negotiator internally.
func (m *Monitor) StartMonitoring(topicID string, kind TopicKind, handler Handler) error {
	if topicID == "" {
		return monerrors.ErrTopicRequired
	}
	if handler == nil && kind == KindConnection {
		return monerrors.ErrHandlerRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loops[topicID]; ok {
		return fmt.Errorf("topic %s is already monitored", topicID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	loop := &topicLoop{
		topicID: topicID,
		kind:    kind,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.loops[topicID] = loop

	m.Logger.Info("monitoring started", logging.LogFields{
		"topic": topicID,
		"kind":  string(kind),
	})
	go m.runLoop(ctx, loop)
	return nil
}

// StopMonitoring cooperatively stops the topic's loop and waits for the
// in-flight cycle, if any, to complete. Dedup and backoff state for the
// topic is dropped, so restarting the topic restarts its cursor.
func (m *Monitor) StopMonitoring(topicID string) error {
	m.mu.Lock()
	loop, ok := m.loops[topicID]
	if ok {
		delete(m.loops, topicID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("topic %s is not monitored", topicID)
	}

	loop.cancel()
	<-loop.done

	m.sched.Forget(topicID)
	m.dedup.Reset(topicID)

	m.Logger.Info("monitoring stopped", logging.LogFields{"topic": topicID})
	return nil
}

// StopAll stops every monitored topic.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	topics := make([]string, 0, len(m.loops))
	for topicID := range m.loops {
		topics = append(topics, topicID)
	}
	m.mu.Unlock()

	for _, topicID := range topics {
		_ = m.StopMonitoring(topicID)
	}
}

// MonitoredTopics returns the ids of all currently monitored topics.
func (m *Monitor) MonitoredTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	topics := make([]string, 0, len(m.loops))
	for topicID := range m.loops {
		topics = append(topics, topicID)
	}
	return topics
}

// InitiateOutbound proposes a connection to the target agent and waits for
// confirmation. A timeout yields a StateFailed connection together with
// ErrConnectionTimeout; retrying is the caller's decision.
func (m *Monitor) InitiateOutbound(ctx context.Context, targetAccountID, targetInboundTopicID string) (*connection.ActiveConnection, error) {
	return m.negotiator.InitiateOutbound(ctx, targetAccountID, targetInboundTopicID)
}

// ListActiveConnections returns a snapshot of all tracked connections in
// insertion order.
func (m *Monitor) ListActiveConnections() []*connection.ActiveConnection {
	return m.negotiator.Connections()
}

// SendMessage appends an application message to an established connection
// topic. Payloads above the inline limit are stored out of band and sent as
// a reference.
func (m *Monitor) SendMessage(ctx context.Context, connectionTopicID, data string) (uint64, error) {
	conn, ok := m.negotiator.Connection(connectionTopicID)
	if !ok || conn.Status != connection.StateEstablished {
		return 0, fmt.Errorf("no established connection on topic %s: %w", connectionTopicID, monerrors.ErrSubmitFailed)
	}

	prepared, err := m.publisher.Prepare(ctx, data)
	if err != nil {
		return 0, err
	}

	payload, err := topiclog.Envelope{
		Operation:  topiclog.OpMessage,
		OperatorID: m.negotiator.OperatorID(),
		Data:       prepared,
	}.Encode()
	if err != nil {
		return 0, err
	}

	return m.client.Append(ctx, connectionTopicID, payload)
}

// Metrics returns the poll metrics collector, or nil when metrics are
// disabled.
func (m *Monitor) Metrics() *PollMetrics {
	return m.metrics
}

func (m *Monitor) runLoop(ctx context.Context, loop *topicLoop) {
	defer close(loop.done)

	ticker := time.NewTicker(m.Conf.PollInterval)
	defer ticker.Stop()

	for {
		// Cancellation is checked at the top of each cycle; a cycle already
		// past this point runs to completion.
		if ctx.Err() != nil {
			return
		}
		m.pollOnce(context.WithoutCancel(ctx), loop)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce runs a single poll cycle for the topic: eligibility gate, read,
// dedup, ordered dispatch, outcome recording.
func (m *Monitor) pollOnce(ctx context.Context, loop *topicLoop) {
	if !loop.polling.CompareAndSwap(false, true) {
		return
	}
	defer loop.polling.Store(false)

	if !m.sched.Eligible(loop.topicID, m.now()) {
		if m.metrics != nil {
			m.metrics.RecordBackoffSkip(loop.topicID)
		}
		m.Logger.Debug("topic in backoff, skipping cycle", logging.LogFields{
			"topic":      loop.topicID,
			"next_poll":  m.sched.NextPollTime(loop.topicID),
			"last_fails": m.sched.ConsecutiveFailures(loop.topicID),
		})
		return
	}

	records, err := m.client.ReadSince(ctx, loop.topicID, m.dedup.LastSequence(loop.topicID))
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordPoll(loop.topicID, false)
		}
		if errors.Is(err, monerrors.ErrRateLimited) {
			m.sched.RecordOutcome(loop.topicID, false)
			if m.metrics != nil {
				m.metrics.RecordRateLimited(loop.topicID)
			}
			m.Logger.Debug("read rate limited, backing off", logging.LogFields{
				"topic":     loop.topicID,
				"next_poll": m.sched.NextPollTime(loop.topicID),
			})
			return
		}
		// Transport failures skip the cycle without touching backoff; the
		// loop stays alive.
		m.Logger.Error("topic read failed, skipping cycle", err, logging.LogFields{
			"topic": loop.topicID,
		})
		return
	}

	m.sched.RecordOutcome(loop.topicID, true)
	if m.metrics != nil {
		m.metrics.RecordPoll(loop.topicID, true)
	}

	topiclog.SortRecords(records)
	for _, rec := range records {
		m.dedup.ObserveSequence(loop.topicID, rec.SequenceNumber)
		if !m.dedup.Admit(loop.topicID, rec) {
			if m.metrics != nil {
				m.metrics.RecordRefused(loop.topicID)
			}
			continue
		}

		m.dedup.MarkInFlight(loop.topicID, rec.SequenceNumber)
		if m.metrics != nil {
			m.metrics.RecordAdmitted(loop.topicID)
		}
		m.dispatch(ctx, loop, rec, records)
		m.dedup.MarkComplete(loop.topicID, rec)
	}
}

// dispatch runs one admitted record through hooks, tracing, and its handler.
// All failures are contained; the caller marks the record complete
// regardless, so a failing record is never re-delivered in this session.
func (m *Monitor) dispatch(ctx context.Context, loop *topicLoop, rec topiclog.Record, batch []topiclog.Record) {
	rctx := RecordContext{
		TopicID:   loop.topicID,
		Kind:      loop.kind,
		Sequence:  rec.SequenceNumber,
		Operation: rec.Operation,
		SenderID:  rec.SenderID,
		StartedAt: m.now(),
	}
	m.hooks.start(rctx)

	ctx, span := m.tracer.Start(ctx, "DispatchRecord")
	span.SetAttributes(
		attribute.String("record.topic", loop.topicID),
		attribute.Int64("record.sequence", int64(rec.SequenceNumber)),
		attribute.String("record.operation", string(rec.Operation)),
	)
	defer span.End()

	err := m.handleRecord(ctx, loop, rec, batch)
	rctx.Duration = time.Since(rctx.StartedAt)

	switch {
	case err == nil:
		m.hooks.done(rctx)
	case errors.Is(err, monerrors.ErrAlreadyHandled):
		// Idempotence short-circuit, not a failure.
		m.hooks.done(rctx)
		m.Logger.Debug("record already handled", logging.LogFields{
			"topic":    loop.topicID,
			"sequence": rec.SequenceNumber,
		})
	case errors.Is(err, monerrors.ErrMalformedRecord):
		m.hooks.fail(rctx, err)
		m.Logger.Warn("discarding malformed record", logging.LogFields{
			"topic":    loop.topicID,
			"sequence": rec.SequenceNumber,
			"error":    err.Error(),
		})
	default:
		m.hooks.fail(rctx, err)
		if m.metrics != nil {
			m.metrics.RecordHandlerFailure(loop.topicID)
		}
		m.Logger.Error("record dispatch failed", monerrors.NewRecordError(loop.topicID, rec.SequenceNumber, err), logging.LogFields{
			"topic":    loop.topicID,
			"sequence": rec.SequenceNumber,
		})
	}
}

// handleRecord routes the record by topic kind and operation. Panics from
// application handlers are converted into recoverable errors to preserve
// loop liveness.
func (m *Monitor) handleRecord(ctx context.Context, loop *topicLoop, rec topiclog.Record, batch []topiclog.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	env, err := topiclog.DecodeEnvelope(rec.Payload)
	if err != nil {
		return err
	}

	switch {
	case loop.kind == KindInbound && rec.Operation == topiclog.OpConnectionRequest:
		conn, err := m.negotiator.HandleProposal(ctx, rec, batch)
		if err != nil {
			return err
		}
		if m.onEstablished != nil {
			m.onEstablished(conn)
		}
		return nil

	case rec.Operation == topiclog.OpMessage:
		if loop.handler == nil {
			return nil
		}
		payload, err := m.resolver.Resolve(ctx, env.Data)
		if err != nil {
			// The handler never sees the raw reference as if it were final
			// content.
			return err
		}
		return loop.handler(ctx, rec, payload)

	default:
		// Lifecycle records outside their home topic carry no action.
		return nil
	}
}
