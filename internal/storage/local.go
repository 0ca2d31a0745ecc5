package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blobvault/internal/keys"
)

// Local is a Backend that stores each object as two sibling files under a
// single directory: the payload named by its public key, and a JSON metadata
// sidecar named `<publicKey>.meta`.
type Local struct {
	dir string
}

// NewLocal creates the storage directory if it does not exist and returns a
// ready-to-use Local backend.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) payloadPath(publicKey string) string {
	return filepath.Join(l.dir, publicKey)
}

func (l *Local) metaPath(publicKey string) string {
	return filepath.Join(l.dir, publicKey+MetaSuffix)
}

// writeMeta serializes the metadata record to a temp file and renames it into
// place, so a concurrent reader never observes a half-written sidecar.
func (l *Local) writeMeta(publicKey string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(l.dir, publicKey+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp metadata file: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.metaPath(publicKey)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename metadata into place: %w", err)
	}
	return nil
}

func (l *Local) readMeta(publicKey string) (Metadata, error) {
	var meta Metadata

	data, err := os.ReadFile(l.metaPath(publicKey))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, fmt.Errorf("%w: %s", ErrNotFound, publicKey)
		}
		return meta, fmt.Errorf("read metadata for %s: %w", publicKey, err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse metadata for %s: %w", publicKey, err)
	}
	return meta, nil
}

func (l *Local) Upload(ctx context.Context, payload io.Reader, originalName, mimeType string, size int64) (keys.Pair, error) {
	if err := validateUpload(originalName, size); err != nil {
		return keys.Pair{}, err
	}

	pair, err := keys.NewPair()
	if err != nil {
		return keys.Pair{}, err
	}

	now := time.Now().UTC()
	meta := Metadata{
		PrivateKey:   pair.PrivateKey,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         size,
		UploadedAt:   now,
		LastAccessed: now,
	}

	if err := l.writeMeta(pair.PublicKey, meta); err != nil {
		return keys.Pair{}, err
	}

	f, err := os.Create(l.payloadPath(pair.PublicKey))
	if err != nil {
		l.removeArtifacts(pair.PublicKey)
		return keys.Pair{}, fmt.Errorf("create payload file: %w", err)
	}

	if _, err := io.Copy(f, payload); err != nil {
		_ = f.Close()
		l.removeArtifacts(pair.PublicKey)
		return keys.Pair{}, fmt.Errorf("write payload: %w", err)
	}
	if err := f.Close(); err != nil {
		l.removeArtifacts(pair.PublicKey)
		return keys.Pair{}, fmt.Errorf("close payload file: %w", err)
	}

	return pair, nil
}

// removeArtifacts is the best-effort rollback after a half-written upload. The
// store must not retain an orphaned payload or sidecar; failures here are
// logged and must never mask the original error.
func (l *Local) removeArtifacts(publicKey string) {
	if err := os.Remove(l.payloadPath(publicKey)); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove payload during upload rollback", "key", publicKey, "error", err)
	}
	if err := os.Remove(l.metaPath(publicKey)); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove metadata during upload rollback", "key", publicKey, "error", err)
	}
}

func (l *Local) Download(ctx context.Context, publicKey string) (*Object, error) {
	meta, err := l.readMeta(publicKey)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(l.payloadPath(publicKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, publicKey)
		}
		return nil, fmt.Errorf("open payload for %s: %w", publicKey, err)
	}

	// Touch lastAccessed so the eviction sweep sees this read. The payload is
	// already open, so a failed touch must not fail the download.
	meta.LastAccessed = time.Now().UTC()
	if err := l.writeMeta(publicKey, meta); err != nil {
		slog.Warn("failed to update lastAccessed", "key", publicKey, "error", err)
	}

	return &Object{
		Body:         f,
		OriginalName: meta.OriginalName,
		MimeType:     meta.MimeType,
		Size:         meta.Size,
	}, nil
}

func (l *Local) Delete(ctx context.Context, privateKey string) error {
	publicKey, err := l.findByPrivateKey(privateKey)
	if err != nil {
		return err
	}

	// Payload removal is authoritative. Dangling metadata self-corrects: a
	// later download of this key fails on the missing payload.
	if err := os.Remove(l.payloadPath(publicKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove payload for %s: %w", publicKey, err)
	}
	if err := os.Remove(l.metaPath(publicKey)); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove metadata after payload deletion", "key", publicKey, "error", err)
	}
	return nil
}

// findByPrivateKey scans every metadata sidecar for a matching private key.
// Linear in the number of stored objects; no secondary index is kept.
func (l *Local) findByPrivateKey(privateKey string) (string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return "", fmt.Errorf("list storage directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), MetaSuffix) {
			continue
		}
		publicKey := strings.TrimSuffix(entry.Name(), MetaSuffix)

		meta, err := l.readMeta(publicKey)
		if err != nil {
			slog.Debug("skipping unreadable metadata during key scan", "key", publicKey, "error", err)
			continue
		}
		if meta.PrivateKey == privateKey {
			return publicKey, nil
		}
	}

	return "", ErrInvalidKey
}

func (l *Local) CleanupInactive(ctx context.Context, inactivityPeriod string) (*CleanupResult, error) {
	cutoff := time.Now().UTC().Add(-ParseRetention(inactivityPeriod))

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list storage directory: %w", err)
	}

	result := &CleanupResult{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), MetaSuffix) {
			continue
		}
		publicKey := strings.TrimSuffix(entry.Name(), MetaSuffix)

		// Each object is processed in isolation; one failure never aborts
		// the sweep.
		meta, err := l.readMeta(publicKey)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{PublicKey: publicKey, Message: err.Error()})
			continue
		}

		if !meta.LastAccessed.Before(cutoff) {
			continue
		}

		if err := os.Remove(l.payloadPath(publicKey)); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{PublicKey: publicKey, Message: err.Error()})
			continue
		}
		if err := os.Remove(l.metaPath(publicKey)); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{PublicKey: publicKey, Message: err.Error()})
			continue
		}
		result.Deleted++
	}

	return result, nil
}
