package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-repository/pkg/ingest"
)

var errBearerDisabled = errors.New("bearer tokens are not configured")

// Handler serves the repository write protocol
type Handler struct {
	service ingest.Service
	files   http.Handler
	logger  *slog.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithStaticRoot serves GET and HEAD requests from a directory tree
func WithStaticRoot(dir string) HandlerOption {
	return func(h *Handler) {
		if dir != "" {
			h.files = http.FileServer(dotlessFS{http.Dir(dir)})
		}
	}
}

// WithHandlerLogger sets the logger used for request failures
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a new repository handler
func NewHandler(service ingest.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the repository routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", h.Health)
	r.Get("/api/coordinates/{group}/{name}/{version}", h.GetCoordinate)

	r.Put("/*", h.Put)
	r.Post("/*", h.rejectWrite)
	r.Patch("/*", h.rejectWrite)
	r.Delete("/*", h.rejectWrite)

	r.Get("/*", h.Read)
	r.Head("/*", h.Read)

	// any other method is an unmatched read
	r.MethodNotAllowed(http.NotFound)

	return r
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, http.StatusText(http.StatusOK))
}

// Put dispatches an upload to the metadata or versioned-artifact handler
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	up, err := ingest.ClassifyPath(requestPath(r))
	if err != nil {
		h.logger.DebugContext(r.Context(), "Rejected upload path", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch up.Kind {
	case ingest.WriteKindMetadata:
		h.putMetadata(w, r, up)
	case ingest.WriteKindArtifact:
		h.putArtifact(w, r, up)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

// putArtifact turns every failure, including panics, into a 403 carrying
// the error text. A partially completed upload must never look successful.
func (h *Handler) putArtifact(w http.ResponseWriter, r *http.Request, up *ingest.UploadPath) {
	ctx := r.Context()
	who := IdentityFromContext(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("upload of %s aborted: %v", up.StorageKey(), rec)
			h.logger.ErrorContext(ctx, "Panic during upload", "path", up.StorageKey(), "uploader", string(who), "error", err)
			h.forbidden(w, r, err)
		}
	}()

	if err := h.service.PutArtifact(ctx, who, up, r.Body); err != nil {
		h.logger.ErrorContext(ctx, "Upload failed", "path", up.StorageKey(), "uploader", string(who), "error", err)
		h.forbidden(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "Upload stored", "path", up.StorageKey(), "uploader", string(who))
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) putMetadata(w http.ResponseWriter, r *http.Request, up *ingest.UploadPath) {
	ctx := r.Context()
	who := IdentityFromContext(ctx)

	err := h.service.PutMetadata(ctx, who, up, r.Body)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusCreated)
	case errors.Is(err, ingest.ErrUnauthorized):
		h.forbidden(w, r, err)
	default:
		h.logger.ErrorContext(ctx, "Metadata upload failed", "path", up.StorageKey(), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) forbidden(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusForbidden)
	render.PlainText(w, r, err.Error())
}

func (h *Handler) rejectWrite(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusBadRequest)
}

// Read serves stored files when a static root is configured
func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		http.NotFound(w, r)
		return
	}
	h.files.ServeHTTP(w, r)
}

// GetCoordinate returns the index entry for a coordinate
func (h *Handler) GetCoordinate(w http.ResponseWriter, r *http.Request) {
	c := ingest.Coordinate{
		Group:   chi.URLParam(r, "group"),
		Name:    chi.URLParam(r, "name"),
		Version: chi.URLParam(r, "version"),
	}

	entry, err := h.service.FindCoordinate(r.Context(), c)
	if errors.Is(err, ingest.ErrCoordinateNotFound) {
		http.Error(w, "coordinate not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Coordinate lookup failed", "coordinate", c.String(), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, entry)
}

// requestPath returns the decoded wildcard part of the route
func requestPath(r *http.Request) string {
	p := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return p
	}
	if decoded, err := url.PathUnescape(p); err == nil {
		return decoded
	}
	return p
}
