package topiclog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	monerrors "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/errors"
)

// MemoryLog is an in-process topic log substrate for tests and examples. All
// clients created from one MemoryLog share the same topics and content store,
// so several agents can talk to each other inside a single process.
//
// It is not a production substrate: nothing is durable and sequence numbers
// restart with the process.
type MemoryLog struct {
	mu        sync.Mutex
	topics    map[string][]Record
	content   map[string][]byte
	nextTopic int
	nextRef   int

	readErrs map[string]*injectedError

	// Now supplies record timestamps; overridable in tests.
	Now func() time.Time
}

type injectedError struct {
	err       error
	remaining int
}

// NewMemoryLog returns an empty in-memory substrate.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		topics:   make(map[string][]Record),
		content:  make(map[string][]byte),
		readErrs: make(map[string]*injectedError),
		Now:      time.Now,
	}
}

// ClientFor returns a Client whose appends are attributed to the given
// operator id ("inboundTopic@account").
func (l *MemoryLog) ClientFor(operatorID string) Client {
	return &memoryClient{log: l, operatorID: operatorID}
}

// InjectReadError makes the next `times` reads of topicID fail with err.
// Used to exercise rate-limit and transport failure paths.
func (l *MemoryLog) InjectReadError(topicID string, err error, times int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErrs[topicID] = &injectedError{err: err, remaining: times}
}

// ReadCount returns how many records topicID currently holds.
func (l *MemoryLog) ReadCount(topicID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.topics[topicID])
}

func (l *MemoryLog) createTopic() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextTopic++
	id := fmt.Sprintf("0.0.%d", 1000+l.nextTopic)
	l.topics[id] = nil
	return id
}

func (l *MemoryLog) takeReadError(topicID string) error {
	inj, ok := l.readErrs[topicID]
	if !ok || inj.remaining <= 0 {
		return nil
	}
	inj.remaining--
	return inj.err
}

type memoryClient struct {
	log        *MemoryLog
	operatorID string
}

func (c *memoryClient) Append(ctx context.Context, topicID string, payload []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", monerrors.ErrSubmitFailed, err)
	}

	env, err := DecodeEnvelope(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: undecodable payload", monerrors.ErrSubmitFailed)
	}

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	if _, ok := c.log.topics[topicID]; !ok {
		return 0, fmt.Errorf("%w: unknown topic %s", monerrors.ErrSubmitFailed, topicID)
	}

	seq := uint64(len(c.log.topics[topicID]) + 1)
	c.log.topics[topicID] = append(c.log.topics[topicID], Record{
		SequenceNumber: seq,
		Operation:      env.Operation,
		SenderID:       c.operatorID,
		CreatedAt:      c.log.Now(),
		Payload:        append([]byte(nil), payload...),
	})
	return seq, nil
}

func (c *memoryClient) ReadAll(ctx context.Context, topicID string) ([]Record, error) {
	return c.readSince(ctx, topicID, 0)
}

func (c *memoryClient) ReadSince(ctx context.Context, topicID string, sinceSequence uint64) ([]Record, error) {
	return c.readSince(ctx, topicID, sinceSequence)
}

func (c *memoryClient) readSince(ctx context.Context, topicID string, sinceSequence uint64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", monerrors.ErrReadFailed, err)
	}

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	if err := c.log.takeReadError(topicID); err != nil {
		return nil, err
	}

	records, ok := c.log.topics[topicID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown topic %s", monerrors.ErrReadFailed, topicID)
	}

	var out []Record
	for _, rec := range records {
		if rec.SequenceNumber <= sinceSequence {
			continue
		}
		rec.Payload = append([]byte(nil), rec.Payload...)
		out = append(out, rec)
	}
	return out, nil
}

func (c *memoryClient) FetchContent(ctx context.Context, reference string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", monerrors.ErrPayloadResolutionFailed, err)
	}

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	content, ok := c.log.content[strings.TrimSpace(reference)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown reference %s", monerrors.ErrPayloadResolutionFailed, reference)
	}
	return append([]byte(nil), content...), nil
}

func (c *memoryClient) StoreContent(ctx context.Context, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", monerrors.ErrSubmitFailed, err)
	}

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	c.log.nextRef++
	ref := fmt.Sprintf("hcs://1/0.0.%d", 5000+c.log.nextRef)
	c.log.content[ref] = append([]byte(nil), content...)
	return ref, nil
}

func (c *memoryClient) CreateTopic(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", monerrors.ErrSubmitFailed, err)
	}
	return c.log.createTopic(), nil
}

// MustCreateTopic provisions a topic outside any client context. Convenience
// for test and example setup.
func (l *MemoryLog) MustCreateTopic() string {
	return l.createTopic()
}
