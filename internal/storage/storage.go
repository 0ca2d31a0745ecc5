// Package storage persists object payloads together with a metadata record,
// keyed by the object's public key. Two backends implement the same contract:
// the local filesystem and an S3-compatible object store. A payload is never
// retained without its metadata record, and vice versa.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"blobvault/internal/keys"
)

// MetaSuffix distinguishes an object's metadata record from its payload.
// Local backend: `<publicKey>.meta` sidecar file. Object-store backend:
// `<publicKey>.meta` object in the same bucket.
const MetaSuffix = ".meta"

// DefaultInactivity is used when a retention string cannot be parsed.
const DefaultInactivity = 30 * 24 * time.Hour

var (
	// ErrNotFound means no object exists for the given public key.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey means no metadata record matches the given private key.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrValidation means the request was malformed and rejected before any I/O.
	ErrValidation = errors.New("validation failed")
)

// Metadata is the record persisted alongside every payload. Timestamps are
// serialized as RFC 3339 strings; the on-disk JSON layout of the local backend
// is normative for interoperability.
type Metadata struct {
	PrivateKey   string    `json:"privateKey"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Object is the result of a download: the payload stream plus the metadata the
// transport layer needs to build a response. The caller owns Body and must
// close it.
type Object struct {
	Body         io.ReadCloser
	OriginalName string
	MimeType     string
	Size         int64
}

// CleanupError records one object that a sweep failed to process.
type CleanupError struct {
	PublicKey string `json:"publicKey"`
	Message   string `json:"message"`
}

// CleanupResult aggregates one sweep over all stored objects.
type CleanupResult struct {
	Deleted int
	Errors  []CleanupError
}

// Backend is the persistence contract shared by all storage variants.
type Backend interface {
	// Upload persists metadata and payload for a new object and returns its
	// key pair. If either write fails after the other succeeded, the backend
	// attempts to remove both artifacts before returning the original error;
	// cleanup failures are logged, never escalated.
	Upload(ctx context.Context, payload io.Reader, originalName, mimeType string, size int64) (keys.Pair, error)

	// Download returns the payload stream and metadata for publicKey, or
	// ErrNotFound. On success it updates the object's lastAccessed timestamp;
	// a failed timestamp write is logged and does not fail the read.
	Download(ctx context.Context, publicKey string) (*Object, error)

	// Delete removes the object whose metadata carries privateKey, located by
	// scanning all metadata records. Returns ErrInvalidKey when nothing
	// matches. Payload removal is authoritative; a metadata removal failure
	// is logged and the call still succeeds.
	Delete(ctx context.Context, privateKey string) error

	// CleanupInactive deletes every object whose lastAccessed is strictly
	// before now minus the parsed inactivity period. Failures are isolated
	// per object and aggregated; the sweep never aborts early.
	CleanupInactive(ctx context.Context, inactivityPeriod string) (*CleanupResult, error)
}

var retentionRe = regexp.MustCompile(`^(\d+)([dhm])$`)

// ParseRetention converts an inactivity period string ("30d", "12h", "45m")
// into a duration. Anything else, including a bare number without a unit,
// falls back to 30 days.
func ParseRetention(s string) time.Duration {
	m := retentionRe.FindStringSubmatch(s)
	if m == nil {
		return DefaultInactivity
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return DefaultInactivity
	}

	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour
	case "h":
		return time.Duration(n) * time.Hour
	default:
		return time.Duration(n) * time.Minute
	}
}

// validateUpload rejects malformed upload requests before any I/O happens.
func validateUpload(originalName string, size int64) error {
	if originalName == "" {
		return fmt.Errorf("%w: original name must not be empty", ErrValidation)
	}
	if size < 0 {
		return fmt.Errorf("%w: size must not be negative", ErrValidation)
	}
	return nil
}
