package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"blobvault/internal/keys"
)

// ObjectStoreConfig identifies the S3-compatible endpoint and bucket that the
// remote backend persists into.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectStore is a Backend persisting into a single bucket of any
// S3-compatible store (MinIO, AWS S3, ...). The logical layout matches the
// local backend: one payload object plus one `<publicKey>.meta` JSON object
// per stored object.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore validates the configuration, creates the client, and ensures
// the bucket exists. Missing endpoint or bucket configuration fails fast.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object storage endpoint must not be empty")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object storage bucket must not be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
		slog.Info("created object storage bucket", "bucket", cfg.Bucket)
	}

	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

func (o *ObjectStore) putMeta(ctx context.Context, publicKey string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = o.client.PutObject(ctx, o.bucket, publicKey+MetaSuffix,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put metadata object: %w", err)
	}
	return nil
}

func (o *ObjectStore) getMeta(ctx context.Context, publicKey string) (Metadata, error) {
	var meta Metadata

	obj, err := o.client.GetObject(ctx, o.bucket, publicKey+MetaSuffix, minio.GetObjectOptions{})
	if err != nil {
		return meta, fmt.Errorf("get metadata object for %s: %w", publicKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return meta, fmt.Errorf("%w: %s", ErrNotFound, publicKey)
		}
		return meta, fmt.Errorf("read metadata object for %s: %w", publicKey, err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse metadata for %s: %w", publicKey, err)
	}
	return meta, nil
}

func (o *ObjectStore) Upload(ctx context.Context, payload io.Reader, originalName, mimeType string, size int64) (keys.Pair, error) {
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

	if err := o.putMeta(ctx, pair.PublicKey, meta); err != nil {
		return keys.Pair{}, err
	}

	_, err = o.client.PutObject(ctx, o.bucket, pair.PublicKey, payload, size,
		minio.PutObjectOptions{ContentType: mimeType})
	if err != nil {
		o.removeArtifacts(ctx, pair.PublicKey)
		return keys.Pair{}, fmt.Errorf("put payload object: %w", err)
	}

	return pair, nil
}

// removeArtifacts is the best-effort rollback after a half-written upload.
func (o *ObjectStore) removeArtifacts(ctx context.Context, publicKey string) {
	if err := o.client.RemoveObject(ctx, o.bucket, publicKey, minio.RemoveObjectOptions{}); err != nil {
		slog.Warn("failed to remove payload during upload rollback", "key", publicKey, "error", err)
	}
	if err := o.client.RemoveObject(ctx, o.bucket, publicKey+MetaSuffix, minio.RemoveObjectOptions{}); err != nil {
		slog.Warn("failed to remove metadata during upload rollback", "key", publicKey, "error", err)
	}
}

func (o *ObjectStore) Download(ctx context.Context, publicKey string) (*Object, error) {
	meta, err := o.getMeta(ctx, publicKey)
	if err != nil {
		return nil, err
	}

	obj, err := o.client.GetObject(ctx, o.bucket, publicKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get payload object for %s: %w", publicKey, err)
	}

	// GetObject is lazy; Stat forces the first round-trip so a missing
	// payload surfaces as NotFound here instead of midway through the stream.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, publicKey)
		}
		return nil, fmt.Errorf("stat payload object for %s: %w", publicKey, err)
	}

	meta.LastAccessed = time.Now().UTC()
	if err := o.putMeta(ctx, publicKey, meta); err != nil {
		slog.Warn("failed to update lastAccessed", "key", publicKey, "error", err)
	}

	return &Object{
		Body:         obj,
		OriginalName: meta.OriginalName,
		MimeType:     meta.MimeType,
		Size:         meta.Size,
	}, nil
}

func (o *ObjectStore) Delete(ctx context.Context, privateKey string) error {
	publicKey, err := o.findByPrivateKey(ctx, privateKey)
	if err != nil {
		return err
	}

	// Payload removal is authoritative, mirroring the local backend.
	if err := o.client.RemoveObject(ctx, o.bucket, publicKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove payload for %s: %w", publicKey, err)
	}
	if err := o.client.RemoveObject(ctx, o.bucket, publicKey+MetaSuffix, minio.RemoveObjectOptions{}); err != nil {
		slog.Warn("failed to remove metadata after payload deletion", "key", publicKey, "error", err)
	}
	return nil
}

// findByPrivateKey enumerates every metadata object in the bucket looking for
// a matching private key. Linear in the number of stored objects.
func (o *ObjectStore) findByPrivateKey(ctx context.Context, privateKey string) (string, error) {
	for info := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return "", fmt.Errorf("list objects: %w", info.Err)
		}
		if !strings.HasSuffix(info.Key, MetaSuffix) {
			continue
		}
		publicKey := strings.TrimSuffix(info.Key, MetaSuffix)

		meta, err := o.getMeta(ctx, publicKey)
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

func (o *ObjectStore) CleanupInactive(ctx context.Context, inactivityPeriod string) (*CleanupResult, error) {
	cutoff := time.Now().UTC().Add(-ParseRetention(inactivityPeriod))

	result := &CleanupResult{}
	for info := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects: %w", info.Err)
		}
		if !strings.HasSuffix(info.Key, MetaSuffix) {
			continue
		}
		publicKey := strings.TrimSuffix(info.Key, MetaSuffix)

		meta, err := o.getMeta(ctx, publicKey)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{PublicKey: publicKey, Message: err.Error()})
			continue
		}

		if !meta.LastAccessed.Before(cutoff) {
			continue
		}

		if err := o.client.RemoveObject(ctx, o.bucket, publicKey, minio.RemoveObjectOptions{}); err != nil {
			result.Errors = append(result.Errors, CleanupError{PublicKey: publicKey, Message: err.Error()})
			continue
		}
		if err := o.client.RemoveObject(ctx, o.bucket, publicKey+MetaSuffix, minio.RemoveObjectOptions{}); err != nil {
			result.Errors = append(result.Errors, CleanupError{PublicKey: publicKey, Message: err.Error()})
			continue
		}
		result.Deleted++
	}

	return result, nil
}
