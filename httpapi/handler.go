// Package httpapi exposes an assetx.Service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
)

// AssetService is the subset of *assetx.Service the handlers call.
type AssetService interface {
	Upload(ctx context.Context, originalName string, size int64, open assetx.SourceFunc) (*assetx.Asset, error)
	Get(ctx context.Context, id string) (*assetx.Asset, error)
	Download(ctx context.Context, id string, acquire assetx.SinkFunc) (*assetx.Asset, error)
	Replace(ctx context.Context, id, originalName string, size int64, open assetx.SourceFunc) (*assetx.Asset, error)
	Delete(ctx context.Context, id string) error
	Copy(ctx context.Context, sourcePath, targetPath string) string
}

var _ AssetService = (*assetx.Service)(nil)

// formField is the multipart field carrying the uploaded file.
const formField = "file"

// Handler holds HTTP handlers for asset endpoints.
type Handler struct {
	svc    AssetService
	cfg    Config
	logger logx.Logger
}

// NewHandler creates a new asset Handler.
func NewHandler(svc AssetService, cfg Config, logger logx.Logger) *Handler {
	if logger == nil {
		logger = logx.NewNoopLogger()
	}
	return &Handler{svc: svc, cfg: cfg.withDefaults(), logger: logger}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"filename", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/assets", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Post("/copy", h.Copy)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/download", h.Download)
		r.Put("/{id}", h.Replace)
		r.Delete("/{id}", h.Delete)
	})

	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	OK(w, map[string]string{"status": "ok"})
}

// Upload stores the multipart "file" field as a new asset.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	header, ok := h.formFile(w, r)
	if !ok {
		return
	}

	asset, err := h.svc.Upload(r.Context(), header.Filename, header.Size, openPart(header))
	if err != nil {
		h.writeError(w, err)
		return
	}
	Created(w, asset)
}

// Get returns the asset record.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	asset, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	OK(w, asset)
}

// Download streams the asset content as an attachment. An unknown id is a
// bare 404.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sink := &responseSink{w: w}

	_, err := h.svc.Download(r.Context(), id, func(a *assetx.Asset) (io.WriteCloser, error) {
		name := url.QueryEscape(a.OriginalName)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("filename", name)
		w.Header().Set("Content-Disposition", "attachment;fileName="+name)
		return sink, nil
	})
	if err == nil {
		return
	}

	switch {
	case sink.written > 0:
		// Headers are gone; the client sees a truncated body.
		h.logger.Error("Download aborted mid-stream", assetx.ArgsToFields("id", id, "written", sink.written, "error", err)...)
	case errors.Is(err, assetx.ErrAssetNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		h.logger.Error("Download failed", assetx.ArgsToFields("id", id, "error", err)...)
		w.Header().Del("Content-Disposition")
		w.Header().Del("filename")
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// Replace swaps the content of an existing asset.
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	header, ok := h.formFile(w, r)
	if !ok {
		return
	}

	asset, err := h.svc.Replace(r.Context(), chi.URLParam(r, "id"), header.Filename, header.Size, openPart(header))
	if err != nil {
		h.writeError(w, err)
		return
	}
	OK(w, asset)
}

// Delete removes an asset. It always succeeds from the caller's view.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.logger.Warn("Delete failed", assetx.ArgsToFields("id", id, "error", err)...)
	}
	OK(w, nil)
}

type copyRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type copyResponse struct {
	Path string `json:"path"`
}

// Copy duplicates a stored path. A failed copy answers with an empty path.
func (h *Handler) Copy(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Source == "" || req.Target == "" {
		BadRequest(w, "source and target are required")
		return
	}

	OK(w, copyResponse{Path: h.svc.Copy(r.Context(), req.Source, req.Target)})
}

func (h *Handler) formFile(w http.ResponseWriter, r *http.Request) (*multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "file too large")
			return nil, false
		}
		BadRequest(w, "invalid multipart form")
		return nil, false
	}

	_, header, err := r.FormFile(formField)
	if err != nil {
		BadRequest(w, "missing file field")
		return nil, false
	}
	return header, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch assetx.KindOf(err) {
	case assetx.KindUnsupportedExtension:
		BadRequest(w, "unsupported file extension")
	case assetx.KindAssetNotFound:
		NotFound(w, "asset not found")
	default:
		h.logger.Error("Asset request failed", assetx.ArgsToFields("kind", assetx.KindOf(err).String(), "error", err)...)
		InternalError(w)
	}
}

// openPart defers opening the uploaded part until the service asks for it.
func openPart(header *multipart.FileHeader) assetx.SourceFunc {
	return func() (io.ReadCloser, error) {
		return header.Open()
	}
}

// responseSink passes bytes to the response and counts them. Close is a
// no-op; the server owns the connection.
type responseSink struct {
	w       http.ResponseWriter
	written int64
}

func (s *responseSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

func (s *responseSink) Close() error { return nil }
