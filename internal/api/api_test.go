package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stashd/stashd/internal/ratelimiter"
	"github.com/stashd/stashd/pkg/metadata"
	"github.com/stashd/stashd/pkg/metadata/memory"
	s3gateway "github.com/stashd/stashd/pkg/objectstore/s3"
	"github.com/stashd/stashd/pkg/objectstore/s3mock"
	"github.com/stashd/stashd/pkg/registry"
)

// newTestServer stands up the full HTTP surface on a memory store and a mock
// S3 backend.
func newTestServer(t *testing.T, limiter *ratelimiter.OwnerLimiter) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	mock := s3mock.New("stashd-test")
	t.Cleanup(mock.Close)

	client, err := s3gateway.NewClient(ctx, s3gateway.ClientConfig{
		Region:          "us-east-1",
		Endpoint:        mock.URL(),
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	gateway, err := s3gateway.NewGateway(ctx, s3gateway.Config{Client: client, Bucket: mock.Bucket()})
	require.NoError(t, err)

	reg, err := registry.New(memory.NewStore(), gateway, registry.Config{Environment: "test", URLTTL: 5 * time.Minute})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	server := httptest.NewServer(NewRouter(reg, limiter))
	t.Cleanup(server.Close)
	return server
}

// doJSON performs a request with an optional JSON body and owner header, and
// decodes the JSON response into out when out is non-nil.
func doJSON(t *testing.T, method, url, owner string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestFullLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t, nil)
	content := []byte("quarterly numbers")

	// Reserve.
	var created createFileResponse
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/files", "alice", createFileRequest{
		DirectoryPath: "/reports/2026",
		Filename:      "q3.csv",
		MIMEType:      "text/csv",
		Permissions:   "public",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, metadata.StatusReserved, created.File.Status)
	require.Equal(t, "/reports/2026/q3.csv", created.File.FullPath)
	require.NotEmpty(t, created.Upload.URL)

	// Upload through the presigned URL.
	req, err := http.NewRequest(http.MethodPut, created.Upload.URL, bytes.NewReader(content))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/csv")
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	putResp.Body.Close()
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	// Verify.
	var validated metadata.File
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/files/%s/uploaded", server.URL, created.File.ID), "alice", nil, &validated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, metadata.StatusValidated, validated.Status)
	require.NotNil(t, validated.SizeBytes)
	require.Equal(t, int64(len(content)), *validated.SizeBytes)

	// Download anonymously (the file is public).
	var download downloadResponse
	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/owners/alice/files/%s/download", server.URL, created.File.ID), "", nil, &download)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(download.URL)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	downloaded, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)
	require.Equal(t, content, downloaded)

	// Delete.
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/v1/files/%s", server.URL, created.File.ID), "alice", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/files/%s", server.URL, created.File.ID), "alice", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	server := newTestServer(t, nil)

	// No owner header.
	resp := doJSON(t, http.MethodGet, server.URL+"/v1/directories", "", nil, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Malformed owner id.
	resp = doJSON(t, http.MethodGet, server.URL+"/v1/directories", "a/b", nil, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Health needs no auth.
	resp = doJSON(t, http.MethodGet, server.URL+"/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorEnvelopeAndStatusMapping(t *testing.T) {
	server := newTestServer(t, nil)

	// Validation: malformed retention.
	var envelope errorBody
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/files", "alice", createFileRequest{
		DirectoryPath: "/x",
		Filename:      "f.txt",
		Retention:     "42d",
	}, &envelope)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, CodeValidation, envelope.Error.Code)
	require.NotEmpty(t, envelope.Error.Message)

	// Conflict: two files on the same path.
	resp = doJSON(t, http.MethodPost, server.URL+"/v1/files", "alice", createFileRequest{
		DirectoryPath: "/x", Filename: "dup.txt",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	envelope = errorBody{}
	resp = doJSON(t, http.MethodPost, server.URL+"/v1/files", "alice", createFileRequest{
		DirectoryPath: "/x", Filename: "dup.txt",
	}, &envelope)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, CodeConflict, envelope.Error.Code)

	// Not found: unknown file id.
	envelope = errorBody{}
	resp = doJSON(t, http.MethodGet, server.URL+"/v1/files/00000000-0000-0000-0000-000000000001", "alice", nil, &envelope)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, CodeNotFound, envelope.Error.Code)

	// Malformed uuid in the path.
	resp = doJSON(t, http.MethodGet, server.URL+"/v1/files/not-a-uuid", "alice", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarkUploadedMismatch(t *testing.T) {
	server := newTestServer(t, nil)

	var created createFileResponse
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/files", "alice", createFileRequest{
		DirectoryPath: "/x", Filename: "never-uploaded.bin",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Verify without uploading: the backend has no object, 502 and the file
	// lands in failed.
	var envelope errorBody
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/files/%s/uploaded", server.URL, created.File.ID), "alice", nil, &envelope)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, CodeStorageMismatch, envelope.Error.Code)

	// Retrying the verdict is structurally disallowed.
	envelope = errorBody{}
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/files/%s/uploaded", server.URL, created.File.ID), "alice", nil, &envelope)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, CodeInvalidOperation, envelope.Error.Code)
}

func TestPrivateDownloadDenied(t *testing.T) {
	server := newTestServer(t, nil)

	var created createFileResponse
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/files", "alice", createFileRequest{
		DirectoryPath: "/private", Filename: "secret.txt",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, created.Upload.URL, bytes.NewReader([]byte("s")))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	putResp.Body.Close()

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/files/%s/uploaded", server.URL, created.File.ID), "alice", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	downloadURL := fmt.Sprintf("%s/v1/owners/alice/files/%s/download", server.URL, created.File.ID)

	// A stranger and an anonymous requester both see 404, never 403.
	resp = doJSON(t, http.MethodGet, downloadURL, "mallory", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, downloadURL, "", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The owner gets through.
	resp = doJSON(t, http.MethodGet, downloadURL, "alice", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDirectoryEndpoints(t *testing.T) {
	server := newTestServer(t, nil)

	var dir metadata.Directory
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/directories", "alice", ensureDirectoryRequest{
		Path:               "/projects/api",
		DefaultPermissions: "public",
		DefaultRetention:   "30d",
	}, &dir)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "/projects/api", dir.FullPath)
	require.Equal(t, metadata.PermissionPublic, dir.DefaultPermissions)

	// Unknown retention in the defaults is rejected up front.
	resp = doJSON(t, http.MethodPost, server.URL+"/v1/directories", "alice", ensureDirectoryRequest{
		Path: "/bad", DefaultRetention: "forever",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var listing registry.Listing
	resp = doJSON(t, http.MethodGet, server.URL+"/v1/directories?path=/projects", "alice", nil, &listing)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, listing.Subdirectories, 1)
	require.Equal(t, "/projects/api", listing.Subdirectories[0].FullPath)

	var tree struct {
		Directories []*metadata.Directory `json:"directories"`
	}
	resp = doJSON(t, http.MethodGet, server.URL+"/v1/directories/tree?path=/", "alice", nil, &tree)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, tree.Directories, 3) // /, /projects, /projects/api

	var renamed metadata.Directory
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/directories/%s/rename", server.URL, dir.ID), "alice", renameDirectoryRequest{
		NewPath: "/archive/api",
	}, &renamed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/archive/api", renamed.FullPath)

	var deleted deleteDirectoryResponse
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/v1/directories/%s", server.URL, dir.ID), "alice", nil, &deleted)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, deleted.FilesRemoved)
}

func TestOwnersAreIsolatedOverHTTP(t *testing.T) {
	server := newTestServer(t, nil)

	var created createFileResponse
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/files", "alice", createFileRequest{
		DirectoryPath: "/x", Filename: "mine.txt",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Bob cannot see alice's file through the owner-scoped routes.
	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/files/%s", server.URL, created.File.ID), "bob", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimiting(t *testing.T) {
	limiter := ratelimiter.New(1, 2)
	t.Cleanup(limiter.Close)
	server := newTestServer(t, limiter)

	statuses := make(map[int]int)
	for i := 0; i < 5; i++ {
		resp := doJSON(t, http.MethodGet, server.URL+"/v1/directories", "alice", nil, nil)
		statuses[resp.StatusCode]++
	}
	require.Positive(t, statuses[http.StatusOK])
	require.Positive(t, statuses[http.StatusTooManyRequests])

	// Bob is unaffected by alice draining her bucket.
	resp := doJSON(t, http.MethodGet, server.URL+"/v1/directories", "bob", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
