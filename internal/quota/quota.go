// Package quota enforces per-client daily byte budgets for uploads and
// downloads against a shared counter store. Admission fails closed: when the
// counter store cannot be reached, transfers are denied rather than allowed
// unmetered.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// counterTTL is the expiry applied to a daily counter on its first increment.
// Bucket keys roll at UTC midnight while this TTL is a rolling 24 h window
// from first use; the slight desynchronization is accepted.
const counterTTL = 86400 * time.Second

// Counter is the external counter-store contract: atomic get, increment, and
// expiry primitives, safe for concurrent use across process instances.
type Counter interface {
	// Get returns the current counter value, 0 when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (int64, error)

	// IncrBy atomically adds delta and returns the new value, creating the
	// key at delta when absent.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Expire sets the key's time-to-live.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Direction selects which daily budget a counter tracks.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

var (
	// ErrLimitExceeded means the client's daily budget does not cover the
	// transfer. Returned wrapped in a LimitError carrying the figures.
	ErrLimitExceeded = errors.New("daily transfer limit exceeded")

	// ErrUnavailable means the counter store could not be consulted; the
	// transfer is denied (fail closed).
	ErrUnavailable = errors.New("quota service unavailable")
)

// Usage reports a client's budget position for one direction and day.
type Usage struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// LimitError is returned when a transfer would exceed the daily budget. It
// matches ErrLimitExceeded under errors.Is and carries the figures the caller
// needs for diagnostics.
type LimitError struct {
	Direction Direction
	Usage     Usage
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily %s limit exceeded: %d of %d bytes used", e.Direction, e.Usage.Used, e.Usage.Limit)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Engine decides admission for uploads and downloads and records usage.
//
// The read-then-increment in CheckUpload is deliberately not atomic across the
// two calls: two concurrent uploads can both observe a pre-limit counter and
// jointly overshoot the budget. The limit is a soft cap. A hard cap would
// increment first, compare the result, and decrement back out on overshoot.
type Engine struct {
	counter       Counter
	uploadLimit   int64
	downloadLimit int64

	now func() time.Time
}

// NewEngine wires the engine to a counter store and the daily limits in bytes.
func NewEngine(counter Counter, uploadLimit, downloadLimit int64) *Engine {
	return &Engine{
		counter:       counter,
		uploadLimit:   uploadLimit,
		downloadLimit: downloadLimit,
		now:           time.Now,
	}
}

// bucketKey derives the daily counter key. Buckets roll over at UTC midnight.
func (e *Engine) bucketKey(direction Direction, clientID string) string {
	return fmt.Sprintf("%s:%s:%s", direction, clientID, e.now().UTC().Format("2006-01-02"))
}

// CheckUpload admits an upload of size bytes for clientID and, when admitted,
// records it against today's counter. Admission holds when used+size stays
// within the limit, inclusive.
func (e *Engine) CheckUpload(ctx context.Context, clientID string, size int64) (Usage, error) {
	key := e.bucketKey(Upload, clientID)

	current, err := e.counter.Get(ctx, key)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if current+size > e.uploadLimit {
		usage := Usage{Used: current, Limit: e.uploadLimit, Remaining: max(e.uploadLimit-current, 0)}
		return usage, &LimitError{Direction: Upload, Usage: usage}
	}

	total, err := e.counter.IncrBy(ctx, key, size)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// First increment of the day arms the counter's expiry.
	if current == 0 {
		if err := e.counter.Expire(ctx, key, counterTTL); err != nil {
			return Usage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return Usage{Used: total, Limit: e.uploadLimit, Remaining: e.uploadLimit - total}, nil
}

// CheckDownload admits a download for clientID. It only reads the counter;
// usage is recorded afterwards by TrackDownload, against the bytes actually
// sent.
func (e *Engine) CheckDownload(ctx context.Context, clientID string) (Usage, error) {
	key := e.bucketKey(Download, clientID)

	current, err := e.counter.Get(ctx, key)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	usage := Usage{Used: current, Limit: e.downloadLimit, Remaining: max(e.downloadLimit-current, 0)}
	if current >= e.downloadLimit {
		return usage, &LimitError{Direction: Download, Usage: usage}
	}
	return usage, nil
}

// TrackDownload records bytes actually transferred to clientID. A negative
// count is treated as zero. This runs after the response stream, so errors are
// surfaced to the caller for logging but never reach the end client.
func (e *Engine) TrackDownload(ctx context.Context, clientID string, bytes int64) error {
	if bytes < 0 {
		bytes = 0
	}

	key := e.bucketKey(Download, clientID)

	total, err := e.counter.IncrBy(ctx, key, bytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// total == bytes means the counter came from zero with this increment.
	if total == bytes {
		if err := e.counter.Expire(ctx, key, counterTTL); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}
