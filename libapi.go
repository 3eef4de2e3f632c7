package lynxagent

import (
	monitorpkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor"
	backoffpkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/backoff"
	configpkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/config"
	connectionpkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/connection"
	contentpkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/content"
	deduppkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/dedup"
	errspkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/errors"
	idspkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/ids"
	jsoncodec "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/jsoncodec"
	loggingpkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/logging"
	topiclogpkg "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/topiclog"
)

type (
	Config       = configpkg.Config
	Monitor      = monitorpkg.Monitor
	Dependencies = monitorpkg.Dependencies
	TopicKind    = monitorpkg.TopicKind
	Handler      = monitorpkg.Handler

	// Record lifecycle hooks
	RecordContext = monitorpkg.RecordContext
	RecordHooks   = monitorpkg.RecordHooks

	// Poll metrics
	PollMetrics         = monitorpkg.PollMetrics
	TopicPollStats      = monitorpkg.TopicPollStats
	PollMetricsSnapshot = monitorpkg.PollMetricsSnapshot

	// Topic log substrate surface
	Record    = topiclogpkg.Record
	Operation = topiclogpkg.Operation
	Envelope  = topiclogpkg.Envelope
	Client    = topiclogpkg.Client
	MemoryLog = topiclogpkg.MemoryLog

	// Connection negotiation
	ActiveConnection = connectionpkg.ActiveConnection
	ConnectionState  = connectionpkg.State
	Negotiator       = connectionpkg.Negotiator
	NegotiatorOpts   = connectionpkg.Options

	// Poll scheduling and dedup
	BackoffScheduler = backoffpkg.Scheduler
	Deduplicator     = deduppkg.Deduplicator

	// Out-of-band content
	ContentResolver  = contentpkg.Resolver
	ContentPublisher = contentpkg.Publisher

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	RecordError = errspkg.RecordError
)

var (
	TryNewMonitor  = monitorpkg.TryNewMonitor
	NewMonitor     = monitorpkg.NewMonitor
	ValidateConfig = configpkg.ValidateConfig

	NewPollMetrics = monitorpkg.NewPollMetrics

	NewMemoryLog     = topiclogpkg.NewMemoryLog
	DecodeEnvelope   = topiclogpkg.DecodeEnvelope
	ParseOperatorID  = topiclogpkg.ParseOperatorID
	FormatOperatorID = topiclogpkg.FormatOperatorID

	NewNegotiator       = connectionpkg.NewNegotiator
	NewBackoffScheduler = backoffpkg.NewScheduler
	NewDeduplicator     = deduppkg.NewDeduplicator
	NewContentResolver  = contentpkg.NewResolver
	NewContentPublisher = contentpkg.NewPublisher
	IsContentReference  = contentpkg.IsReference

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter
	NopLogger                 = loggingpkg.Nop

	CreateULID = idspkg.CreateULID

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	// Error taxonomy
	ErrRateLimited             = errspkg.ErrRateLimited
	ErrReadFailed              = errspkg.ErrReadFailed
	ErrSubmitFailed            = errspkg.ErrSubmitFailed
	ErrAlreadyHandled          = errspkg.ErrAlreadyHandled
	ErrMalformedRecord         = errspkg.ErrMalformedRecord
	ErrPayloadResolutionFailed = errspkg.ErrPayloadResolutionFailed
	ErrConnectionTimeout       = errspkg.ErrConnectionTimeout
	ErrClientRequired          = errspkg.ErrClientRequired
	ErrConfigRequired          = errspkg.ErrConfigRequired
	ErrLoggerRequired          = errspkg.ErrLoggerRequired
	ErrHandlerRequired         = errspkg.ErrHandlerRequired
	ErrTopicRequired           = errspkg.ErrTopicRequired
)

// Topic kinds routed by the Monitor.
const (
	KindInbound    = monitorpkg.KindInbound
	KindConnection = monitorpkg.KindConnection
)

// Record operations carried in envelope payloads.
const (
	OpConnectionRequest = topiclogpkg.OpConnectionRequest
	OpConnectionCreated = topiclogpkg.OpConnectionCreated
	OpMessage           = topiclogpkg.OpMessage
)

// Connection lifecycle states.
const (
	StateProposed    = connectionpkg.StateProposed
	StateConfirmed   = connectionpkg.StateConfirmed
	StateEstablished = connectionpkg.StateEstablished
	StateFailed      = connectionpkg.StateFailed
)
