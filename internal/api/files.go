package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stashd/stashd/pkg/metadata"
	"github.com/stashd/stashd/pkg/objectstore"
	"github.com/stashd/stashd/pkg/registry"
)

// createFileRequest is the body of POST /v1/files.
type createFileRequest struct {
	DirectoryPath string `json:"directory_path"`
	Filename      string `json:"filename"`
	MIMEType      string `json:"mime_type,omitempty"`
	Permissions   string `json:"permissions,omitempty"`
	Retention     string `json:"retention,omitempty"`
	SizeHint      *int64 `json:"size_hint,omitempty"`
}

// createFileResponse pairs the reserved file with its upload ticket.
type createFileResponse struct {
	File   *metadata.File            `json:"file"`
	Upload *objectstore.UploadTicket `json:"upload"`
}

// CreateFile handles POST /v1/files: reserve a file and hand back the
// presigned upload URL.
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ownerID := OwnerFromContext(r.Context())
	file, ticket, err := h.registry.CreateFile(r.Context(), ownerID, registry.CreateFileParams{
		DirectoryPath: req.DirectoryPath,
		Filename:      req.Filename,
		MIMEType:      req.MIMEType,
		Permissions:   req.Permissions,
		Retention:     req.Retention,
		SizeHint:      req.SizeHint,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createFileResponse{File: file, Upload: ticket})
}

// GetFile handles GET /v1/files/{fileID}.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "fileID")
	if !ok {
		return
	}

	file, err := h.registry.GetFile(r.Context(), OwnerFromContext(r.Context()), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// GetFileByPath handles GET /v1/files?path=/docs/readme.md.
func (h *Handler) GetFileByPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "query parameter 'path' is required")
		return
	}

	file, err := h.registry.GetFileByPath(r.Context(), OwnerFromContext(r.Context()), path)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// MarkUploaded handles POST /v1/files/{fileID}/uploaded: verify the claimed
// upload against the object store and settle the file's status.
func (h *Handler) MarkUploaded(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "fileID")
	if !ok {
		return
	}

	file, err := h.registry.MarkUploaded(r.Context(), OwnerFromContext(r.Context()), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// updateFileRequest is the body of PATCH /v1/files/{fileID}. Absent fields
// stay untouched.
type updateFileRequest struct {
	NewDirectoryPath *string `json:"new_directory_path,omitempty"`
	NewFilename      *string `json:"new_filename,omitempty"`
	Permissions      *string `json:"permissions,omitempty"`
}

// UpdateFile handles PATCH /v1/files/{fileID}: move, rename, or change the
// permission of a file.
func (h *Handler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "fileID")
	if !ok {
		return
	}
	var req updateFileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	file, err := h.registry.UpdateFile(r.Context(), OwnerFromContext(r.Context()), id, registry.UpdateFileParams{
		NewDirectoryPath: req.NewDirectoryPath,
		NewFilename:      req.NewFilename,
		Permissions:      req.Permissions,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// DeleteFile handles DELETE /v1/files/{fileID}.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "fileID")
	if !ok {
		return
	}

	if err := h.registry.DeleteFile(r.Context(), OwnerFromContext(r.Context()), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// downloadResponse carries the presigned download URL and the file metadata.
type downloadResponse struct {
	URL  string         `json:"url"`
	File *metadata.File `json:"file"`
}

// Download handles GET /v1/owners/{ownerID}/files/{fileID}/download.
//
// The route is reachable anonymously: the requester id comes from the
// optional owner header, and access resolution decides what that requester
// may see. Denials are indistinguishable from missing files.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if err := metadata.ValidateOwnerID(ownerID); err != nil {
		writeStoreError(w, err)
		return
	}
	id, ok := pathID(w, r, "fileID")
	if !ok {
		return
	}

	requesterID := OwnerFromContext(r.Context())
	url, file, err := h.registry.IssueDownload(r.Context(), requesterID, ownerID, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{URL: url, File: file})
}
