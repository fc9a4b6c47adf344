package api

import (
	"fmt"
	"net/http"

	"github.com/stashd/stashd/pkg/metadata"
)

// ensureDirectoryRequest is the body of POST /v1/directories. The defaults
// apply to the leaf directory only; ancestors materialized along the way keep
// theirs.
type ensureDirectoryRequest struct {
	Path               string `json:"path"`
	DefaultPermissions string `json:"default_permissions,omitempty"`
	DefaultRetention   string `json:"default_retention,omitempty"`
}

// EnsureDirectory handles POST /v1/directories: materialize every directory
// along the path and return the leaf.
func (h *Handler) EnsureDirectory(w http.ResponseWriter, r *http.Request) {
	var req ensureDirectoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var defaults *metadata.DirectoryDefaults
	if req.DefaultPermissions != "" || req.DefaultRetention != "" {
		defaults = &metadata.DirectoryDefaults{}
		if req.DefaultPermissions != "" {
			permission, ok := metadata.ParsePermission(req.DefaultPermissions)
			if !ok {
				writeError(w, http.StatusBadRequest, CodeValidation,
					fmt.Sprintf("unknown permission %q", req.DefaultPermissions))
				return
			}
			defaults.Permissions = permission
		}
		if req.DefaultRetention != "" {
			retention, ok := metadata.ParseRetentionPolicy(req.DefaultRetention)
			if !ok {
				writeError(w, http.StatusBadRequest, CodeValidation,
					fmt.Sprintf("unknown retention policy %q", req.DefaultRetention))
				return
			}
			defaults.Retention = retention
		}
	}

	dir, err := h.registry.EnsurePath(r.Context(), OwnerFromContext(r.Context()), req.Path, defaults)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dir)
}

// ListDirectory handles GET /v1/directories?path=/docs: the directory plus
// its immediate subdirectories and files.
func (h *Handler) ListDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = metadata.RootPath
	}

	listing, err := h.registry.ListDirectory(r.Context(), OwnerFromContext(r.Context()), path)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// ListSubtree handles GET /v1/directories/tree?path=/docs: every directory
// under the path, the path itself included, ordered by full path.
func (h *Handler) ListSubtree(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = metadata.RootPath
	}

	dirs, err := h.registry.ListSubtree(r.Context(), OwnerFromContext(r.Context()), path)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"directories": dirs})
}

// renameDirectoryRequest is the body of POST /v1/directories/{dirID}/rename.
type renameDirectoryRequest struct {
	NewPath string `json:"new_path"`
}

// RenameDirectory handles POST /v1/directories/{dirID}/rename: move the
// directory and its whole subtree to a new path.
func (h *Handler) RenameDirectory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "dirID")
	if !ok {
		return
	}
	var req renameDirectoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	dir, err := h.registry.RenameDirectory(r.Context(), OwnerFromContext(r.Context()), id, req.NewPath)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dir)
}

// deleteDirectoryResponse reports how many files went with the directory.
type deleteDirectoryResponse struct {
	FilesRemoved int `json:"files_removed"`
}

// DeleteDirectory handles DELETE /v1/directories/{dirID}. The directory must
// have no subdirectories; files directly inside it are removed with it.
func (h *Handler) DeleteDirectory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "dirID")
	if !ok {
		return
	}

	removed, err := h.registry.DeleteDirectory(r.Context(), OwnerFromContext(r.Context()), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteDirectoryResponse{FilesRemoved: removed})
}
