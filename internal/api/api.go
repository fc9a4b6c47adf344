// Package api exposes the registry over HTTP.
//
// The surface is a thin translation layer: handlers decode JSON, call one
// registry operation, and encode the result or map the domain error to a
// status code. No business rules live here.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/stashd/stashd/internal/ratelimiter"
	"github.com/stashd/stashd/pkg/registry"
)

// maxRequestBody caps JSON request bodies. Requests carry metadata only;
// file content goes straight to the object store via presigned URLs.
const maxRequestBody = 1 << 20

// Handler holds the handlers' shared collaborators.
type Handler struct {
	registry *registry.Registry
}

// NewRouter builds the HTTP routing tree.
//
// Layout:
//   - GET  /healthz                                     liveness + backend health
//   - GET  /v1/owners/{ownerID}/files/{fileID}/download anonymous-capable download
//   - everything else under /v1                         owner-authenticated
//
// limiter may be nil to disable request throttling.
func NewRouter(reg *registry.Registry, limiter *ratelimiter.OwnerLimiter) chi.Router {
	h := &Handler{registry: reg}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Healthcheck)

	// The download route resolves access itself, so it must admit requests
	// with no owner header at all.
	r.Group(func(r chi.Router) {
		r.Use(OptionalOwner)
		r.Use(RateLimit(limiter))
		r.Get("/v1/owners/{ownerID}/files/{fileID}/download", h.Download)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireOwner(reg))
		r.Use(RateLimit(limiter))

		r.Route("/files", func(r chi.Router) {
			r.Post("/", h.CreateFile)
			r.Get("/", h.GetFileByPath)
			r.Get("/{fileID}", h.GetFile)
			r.Post("/{fileID}/uploaded", h.MarkUploaded)
			r.Patch("/{fileID}", h.UpdateFile)
			r.Delete("/{fileID}", h.DeleteFile)
		})

		r.Route("/directories", func(r chi.Router) {
			r.Post("/", h.EnsureDirectory)
			r.Get("/", h.ListDirectory)
			r.Get("/tree", h.ListSubtree)
			r.Post("/{dirID}/rename", h.RenameDirectory)
			r.Delete("/{dirID}", h.DeleteDirectory)
		})
	})

	return r
}

// Healthcheck handles GET /healthz.
func (h *Handler) Healthcheck(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Healthcheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody decodes the JSON request body into target. Oversized or
// malformed bodies report false after writing the error response.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, CodeValidation, "request body too large")
			return false
		}
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, CodeValidation, "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeValidation, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

// pathID parses the named URL parameter as a UUID, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "malformed "+name)
		return uuid.Nil, false
	}
	return id, true
}
