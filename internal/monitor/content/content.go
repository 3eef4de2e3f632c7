// Package content handles out-of-band payload storage: resolving
// reference-shaped message data before dispatch and off-loading oversized
// outbound payloads behind a reference.
package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/sync/singleflight"

	monerrors "github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/errors"
	"github.com/0xPrimordia/LynxAgent-sub001/internal/monitor/topiclog"
)

// referencePattern matches scheme-prefixed pointers to out-of-band stored
// content, e.g. "hcs://1/0.0.999".
var referencePattern = regexp.MustCompile(`^hcs://[0-9]+/\S+$`)

// IsReference reports whether data points at out-of-band content rather than
// carrying it inline.
func IsReference(data string) bool {
	return referencePattern.MatchString(data)
}

// Resolver fetches and reassembles referenced content before a record is
// handed to the application handler.
type Resolver struct {
	client topiclog.Client
	group  singleflight.Group
}

func NewResolver(client topiclog.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the full content for data. Inline payloads pass through
// untouched. Concurrent resolutions of the same reference are collapsed into
// one fetch.
func (r *Resolver) Resolve(ctx context.Context, data string) ([]byte, error) {
	if !IsReference(data) {
		return []byte(data), nil
	}

	v, err, _ := r.group.Do(data, func() (any, error) {
		return r.client.FetchContent(ctx, data)
	})
	if err != nil {
		if errors.Is(err, monerrors.ErrPayloadResolutionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", monerrors.ErrPayloadResolutionFailed, err)
	}
	return v.([]byte), nil
}

// Publisher prepares outbound message data for submission. Payloads above
// the inline limit are stored out of band and replaced by their reference,
// the inverse of Resolver.
type Publisher struct {
	client      topiclog.Client
	inlineLimit int
}

func NewPublisher(client topiclog.Client, inlineLimit int) *Publisher {
	return &Publisher{client: client, inlineLimit: inlineLimit}
}

// Prepare returns the data to submit inline, storing it out of band first
// when it exceeds the inline limit.
func (p *Publisher) Prepare(ctx context.Context, data string) (string, error) {
	if len(data) <= p.inlineLimit {
		return data, nil
	}

	ref, err := p.client.StoreContent(ctx, []byte(data))
	if err != nil {
		return "", fmt.Errorf("store oversized payload: %w", err)
	}
	return ref, nil
}
