// Package server is the HTTP transport in front of the storage facade and the
// quota engine. It parses requests, resolves the client identity, and maps
// the core's error kinds onto status codes; all persistence and admission
// semantics live below it.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blobvault/internal/keys"
	"blobvault/internal/metrics"
	"blobvault/internal/quota"
	"blobvault/internal/storage"
)

// maxUploadMemory bounds the multipart parser's in-memory buffer; larger
// payloads spill to temp files.
const maxUploadMemory = 32 << 20

// Server holds the transport's collaborators.
type Server struct {
	store      storage.Backend
	quota      *quota.Engine
	production bool
}

// New wires the transport to the storage facade and the quota engine. In
// production mode, error responses omit internal detail strings.
func New(store storage.Backend, engine *quota.Engine, production bool) *Server {
	return &Server{store: store, quota: engine, production: production}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/", s.handleUpload)
	r.Get("/{publicKey}", s.handleDownload)
	r.Delete("/{privateKey}", s.handleDelete)

	return r
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	*quota.Usage
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string, cause error, usage *quota.Usage) {
	body := errorBody{Kind: kind, Message: message, Usage: usage}
	if cause != nil && !s.production {
		body.Detail = cause.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "expected a multipart form with a \"file\" field", err, nil)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "missing \"file\" field", err, nil)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	client := clientIP(r)
	usage, err := s.quota.CheckUpload(r.Context(), client, header.Size)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrLimitExceeded):
			metrics.QuotaDeniedTotal.WithLabelValues(string(quota.Upload)).Inc()
			s.writeError(w, http.StatusTooManyRequests, "quota_exceeded", "daily upload limit exceeded", err, &usage)
		case errors.Is(err, quota.ErrUnavailable):
			s.writeError(w, http.StatusServiceUnavailable, "service_unavailable", "quota service unavailable", err, nil)
		default:
			s.writeError(w, http.StatusInternalServerError, "internal", "upload admission failed", err, nil)
		}
		return
	}

	pair, err := s.store.Upload(r.Context(), file, header.Filename, mimeType, header.Size)
	if err != nil {
		if errors.Is(err, storage.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, "validation", "invalid upload request", err, nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal", "failed to store object", err, nil)
		return
	}

	metrics.UploadsTotal.Inc()
	metrics.UploadBytesTotal.Add(float64(header.Size))

	writeJSON(w, http.StatusOK, map[string]string{
		"publicKey":  pair.PublicKey,
		"privateKey": pair.PrivateKey,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	publicKey := chi.URLParam(r, "publicKey")
	if !keys.ValidPublicKey(publicKey) {
		s.writeError(w, http.StatusBadRequest, "validation", "malformed public key", nil, nil)
		return
	}

	client := clientIP(r)
	usage, err := s.quota.CheckDownload(r.Context(), client)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrLimitExceeded):
			metrics.QuotaDeniedTotal.WithLabelValues(string(quota.Download)).Inc()
			s.writeError(w, http.StatusTooManyRequests, "quota_exceeded", "daily download limit exceeded", err, &usage)
		case errors.Is(err, quota.ErrUnavailable):
			s.writeError(w, http.StatusServiceUnavailable, "service_unavailable", "quota service unavailable", err, nil)
		default:
			s.writeError(w, http.StatusInternalServerError, "internal", "download admission failed", err, nil)
		}
		return
	}

	obj, err := s.store.Download(r.Context(), publicKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "not_found", "no object for this key", err, nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal", "failed to read object", err, nil)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", obj.OriginalName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", obj.Size))

	sent, err := io.Copy(w, obj.Body)
	if err != nil {
		// Headers are out; nothing to do for the client but record what left.
		slog.Warn("download stream interrupted", "key", publicKey, "sent", sent, "error", err)
	}

	metrics.DownloadsTotal.Inc()
	metrics.DownloadBytesTotal.Add(float64(sent))

	// Usage is recorded against bytes actually sent, after the response. A
	// tracking failure is logged, never surfaced to the client.
	if err := s.quota.TrackDownload(r.Context(), client, sent); err != nil {
		slog.Error("failed to track download usage", "client", client, "bytes", sent, "error", err)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	privateKey := chi.URLParam(r, "privateKey")
	if !keys.ValidPrivateKey(privateKey) {
		s.writeError(w, http.StatusBadRequest, "validation", "malformed private key", nil, nil)
		return
	}

	if err := s.store.Delete(r.Context(), privateKey); err != nil {
		if errors.Is(err, storage.ErrInvalidKey) {
			s.writeError(w, http.StatusUnauthorized, "invalid_key", "no object matches this private key", err, nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal", "failed to delete object", err, nil)
		return
	}

	metrics.DeletesTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
