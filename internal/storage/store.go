package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"blobvault/internal/keys"
)

// Config selects and parameterizes the backend the Store forwards to.
type Config struct {
	// Provider names the backend variant: "local" or "minio"/"s3". Unknown
	// names fall back to local.
	Provider string
	// DataDir is the root directory of the local backend.
	DataDir string
	// Object configures the S3-compatible backend.
	Object ObjectStoreConfig
}

// Store is the single entry point for all persistence. It picks exactly one
// backend at construction time and forwards every operation to it unchanged,
// adding success and failure log lines. An initialization failure of the
// chosen backend propagates; there is no fallback to another variant.
type Store struct {
	backend  Backend
	provider string
}

// NewStore constructs the backend named by cfg.Provider.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "minio", "s3":
		backend, err := NewObjectStore(ctx, cfg.Object)
		if err != nil {
			return nil, err
		}
		return &Store{backend: backend, provider: provider}, nil
	default:
		if provider != "local" && provider != "" {
			slog.Warn("unknown storage provider, falling back to local", "provider", cfg.Provider)
		}
		backend, err := NewLocal(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return &Store{backend: backend, provider: "local"}, nil
	}
}

// Provider returns the name of the backend variant in use.
func (s *Store) Provider() string {
	return s.provider
}

func (s *Store) Upload(ctx context.Context, payload io.Reader, originalName, mimeType string, size int64) (keys.Pair, error) {
	start := time.Now()

	pair, err := s.backend.Upload(ctx, payload, originalName, mimeType, size)
	if err != nil {
		slog.Error("upload failed", "name", originalName, "size", size, "error", err)
		return keys.Pair{}, err
	}

	slog.Info("upload complete", "key", pair.PublicKey, "size", size, "duration", time.Since(start))
	return pair, nil
}

func (s *Store) Download(ctx context.Context, publicKey string) (*Object, error) {
	start := time.Now()

	obj, err := s.backend.Download(ctx, publicKey)
	if err != nil {
		slog.Error("download failed", "key", publicKey, "error", err)
		return nil, err
	}

	slog.Info("download started", "key", publicKey, "size", obj.Size, "duration", time.Since(start))
	return obj, nil
}

func (s *Store) Delete(ctx context.Context, privateKey string) error {
	start := time.Now()

	if err := s.backend.Delete(ctx, privateKey); err != nil {
		slog.Error("delete failed", "error", err)
		return err
	}

	slog.Info("delete complete", "duration", time.Since(start))
	return nil
}

func (s *Store) CleanupInactive(ctx context.Context, inactivityPeriod string) (*CleanupResult, error) {
	start := time.Now()

	result, err := s.backend.CleanupInactive(ctx, inactivityPeriod)
	if err != nil {
		slog.Error("cleanup sweep failed", "period", inactivityPeriod, "error", err)
		return nil, err
	}

	slog.Info("cleanup sweep complete",
		"period", inactivityPeriod,
		"deleted", result.Deleted,
		"errors", len(result.Errors),
		"duration", time.Since(start),
	)
	return result, nil
}
