package storage_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blobvault/internal/keys"
	"blobvault/internal/storage"

	"github.com/stretchr/testify/require"
)

func uploadString(t *testing.T, backend storage.Backend, payload, name, mime string) keys.Pair {
	t.Helper()

	pair, err := backend.Upload(context.Background(), bytes.NewReader([]byte(payload)), name, mime, int64(len(payload)))
	require.NoError(t, err, "Upload error")
	return pair
}

// rewriteLastAccessed backdates an object's sidecar so eviction behavior can
// be exercised without waiting. The sidecar JSON layout is normative, so
// editing it directly is fair game for a test.
func rewriteLastAccessed(t *testing.T, dir, publicKey string, lastAccessed time.Time) {
	t.Helper()

	metaPath := filepath.Join(dir, publicKey+storage.MetaSuffix)
	data, err := os.ReadFile(metaPath)
	require.NoError(t, err, "read sidecar")

	var meta storage.Metadata
	require.NoError(t, json.Unmarshal(data, &meta), "parse sidecar")

	meta.LastAccessed = lastAccessed
	out, err := json.Marshal(meta)
	require.NoError(t, err, "marshal sidecar")
	require.NoError(t, os.WriteFile(metaPath, out, 0o644), "write sidecar")
}

func TestLocalUploadDownloadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	payload := []byte("hello local storage")
	pair, err := backend.Upload(context.Background(), bytes.NewReader(payload), "greeting.txt", "text/plain", int64(len(payload)))
	require.NoError(t, err, "Upload error")

	require.True(t, keys.ValidPublicKey(pair.PublicKey), "public key format")
	require.True(t, keys.ValidPrivateKey(pair.PrivateKey), "private key format")

	obj, err := backend.Download(context.Background(), pair.PublicKey)
	require.NoError(t, err, "Download error")
	defer obj.Body.Close()

	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err, "read payload stream")
	require.Equal(t, payload, got, "payload mismatch")
	require.Equal(t, "greeting.txt", obj.OriginalName, "original name mismatch")
	require.Equal(t, "text/plain", obj.MimeType, "mime type mismatch")
	require.Equal(t, int64(len(payload)), obj.Size, "size mismatch")
}

func TestLocalPersistedLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	pair := uploadString(t, backend, "payload bytes", "file.bin", "application/octet-stream")

	// Payload file named exactly by the public key.
	payloadData, err := os.ReadFile(filepath.Join(dir, pair.PublicKey))
	require.NoError(t, err, "expected payload file")
	require.Equal(t, []byte("payload bytes"), payloadData, "payload file content")

	// Sidecar named `<publicKey>.meta`, holding the full metadata record.
	metaData, err := os.ReadFile(filepath.Join(dir, pair.PublicKey+storage.MetaSuffix))
	require.NoError(t, err, "expected metadata sidecar")

	var meta storage.Metadata
	require.NoError(t, json.Unmarshal(metaData, &meta), "sidecar should be valid JSON")
	require.Equal(t, pair.PrivateKey, meta.PrivateKey, "sidecar private key")
	require.Equal(t, "file.bin", meta.OriginalName, "sidecar original name")
	require.Equal(t, "application/octet-stream", meta.MimeType, "sidecar mime type")
	require.Equal(t, int64(len("payload bytes")), meta.Size, "sidecar size")
	require.False(t, meta.UploadedAt.IsZero(), "uploadedAt should be set")
	require.Equal(t, meta.UploadedAt, meta.LastAccessed, "lastAccessed starts at upload time")
}

func TestLocalUploadValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	_, err = backend.Upload(context.Background(), bytes.NewReader([]byte("x")), "", "text/plain", 1)
	require.ErrorIs(t, err, storage.ErrValidation, "empty original name should be a validation error")

	// Rejected before any I/O: the directory stays empty.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "read storage dir")
	require.Empty(t, entries, "no artifacts should be written for a rejected upload")
}

func TestLocalDownloadNotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	_, err = backend.Download(context.Background(), "00000000000000000000000000000000")
	require.ErrorIs(t, err, storage.ErrNotFound, "unknown public key should be NotFound")
}

func TestLocalDownloadTouchesLastAccessed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	pair := uploadString(t, backend, "touch me", "touch.txt", "text/plain")

	past := time.Now().UTC().Add(-48 * time.Hour)
	rewriteLastAccessed(t, dir, pair.PublicKey, past)

	obj, err := backend.Download(context.Background(), pair.PublicKey)
	require.NoError(t, err, "Download error")
	_ = obj.Body.Close()

	data, err := os.ReadFile(filepath.Join(dir, pair.PublicKey+storage.MetaSuffix))
	require.NoError(t, err, "read sidecar")
	var meta storage.Metadata
	require.NoError(t, json.Unmarshal(data, &meta), "parse sidecar")
	require.True(t, meta.LastAccessed.After(past), "lastAccessed should move forward on download")
}

func TestLocalDeleteThenDownloadFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	pair := uploadString(t, backend, "short lived", "tmp.txt", "text/plain")

	require.NoError(t, backend.Delete(context.Background(), pair.PrivateKey), "Delete error")

	_, err = backend.Download(context.Background(), pair.PublicKey)
	require.ErrorIs(t, err, storage.ErrNotFound, "download after delete should be NotFound")
}

func TestLocalDeleteInvalidKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	uploadString(t, backend, "still here", "keep.txt", "text/plain")

	badKey := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	err = backend.Delete(context.Background(), badKey)
	require.ErrorIs(t, err, storage.ErrInvalidKey, "unmatched private key should be InvalidKey")
}

func TestLocalCleanupCutoff(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	stale := uploadString(t, backend, "stale", "stale.txt", "text/plain")
	fresh := uploadString(t, backend, "fresh", "fresh.txt", "text/plain")

	now := time.Now().UTC()
	rewriteLastAccessed(t, dir, stale.PublicKey, now.Add(-11*time.Minute))
	rewriteLastAccessed(t, dir, fresh.PublicKey, now.Add(-9*time.Minute))

	result, err := backend.CleanupInactive(context.Background(), "10m")
	require.NoError(t, err, "CleanupInactive error")
	require.Equal(t, 1, result.Deleted, "only the stale object should be deleted")
	require.Empty(t, result.Errors, "no sweep errors expected")

	_, err = backend.Download(context.Background(), stale.PublicKey)
	require.ErrorIs(t, err, storage.ErrNotFound, "stale object should be gone")

	obj, err := backend.Download(context.Background(), fresh.PublicKey)
	require.NoError(t, err, "fresh object should survive")
	_ = obj.Body.Close()
}

func TestLocalCleanupIsolatesCorruptMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	now := time.Now().UTC()
	var pairs []keys.Pair
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		pair := uploadString(t, backend, "old payload", name, "text/plain")
		rewriteLastAccessed(t, dir, pair.PublicKey, now.Add(-48*time.Hour))
		pairs = append(pairs, pair)
	}

	// Corrupt one sidecar; the sweep must report it and still delete the rest.
	corrupt := pairs[1].PublicKey
	require.NoError(t,
		os.WriteFile(filepath.Join(dir, corrupt+storage.MetaSuffix), []byte("{not json"), 0o644),
		"corrupt sidecar")

	result, err := backend.CleanupInactive(context.Background(), "1h")
	require.NoError(t, err, "CleanupInactive error")
	require.Equal(t, 2, result.Deleted, "the two parsable objects should be deleted")
	require.Len(t, result.Errors, 1, "exactly one sweep error expected")
	require.Equal(t, corrupt, result.Errors[0].PublicKey, "error should identify the corrupt object")
}

func TestLocalCleanupDefaultPeriod(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backend, err := storage.NewLocal(dir)
	require.NoError(t, err, "NewLocal error")

	pair := uploadString(t, backend, "recent enough", "keep.txt", "text/plain")
	rewriteLastAccessed(t, dir, pair.PublicKey, time.Now().UTC().Add(-29*24*time.Hour))

	// Garbage period falls back to 30 days, so a 29-day-old object survives.
	result, err := backend.CleanupInactive(context.Background(), "soon")
	require.NoError(t, err, "CleanupInactive error")
	require.Equal(t, 0, result.Deleted, "object within the default window should survive")
}
