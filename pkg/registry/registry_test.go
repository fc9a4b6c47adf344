package registry

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stashd/stashd/pkg/metadata"
	"github.com/stashd/stashd/pkg/metadata/memory"
	"github.com/stashd/stashd/pkg/objectstore"
	s3gateway "github.com/stashd/stashd/pkg/objectstore/s3"
	"github.com/stashd/stashd/pkg/objectstore/s3mock"
)

// newTestRegistry wires a memory store, a mock S3 backend and a real gateway
// into a registry, the same shape production runs with.
func newTestRegistry(t *testing.T) (*Registry, *s3mock.Server) {
	t.Helper()
	return newTestRegistryWithStore(t, memory.NewStore())
}

func newTestRegistryWithStore(t *testing.T, store metadata.Store) (*Registry, *s3mock.Server) {
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

	reg, err := New(store, gateway, Config{Environment: "test", URLTTL: 5 * time.Minute})
	require.NoError(t, err)
	return reg, mock
}

// uploadTo performs the client's half of the flow: a plain HTTP PUT against
// the presigned URL.
func uploadTo(t *testing.T, ticket *objectstore.UploadTicket, contentType string, body []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPut, ticket.URL, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFileLifecycle(t *testing.T) {
	reg, mock := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	file, ticket, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/projects/api",
		Filename:      "report.pdf",
		Retention:     "7d",
	})
	require.NoError(t, err)
	require.Equal(t, metadata.StatusReserved, file.Status)
	require.Equal(t, "/projects/api/report.pdf", file.FullPath)
	require.Nil(t, file.SizeBytes)
	require.NotNil(t, file.ExpiresAt)

	// The object key follows the environment/retention/owner/file scheme.
	parts := objectstore.ParseKey(file.ObjectKey)
	require.NotNil(t, parts)
	require.Equal(t, "test", parts.Environment)
	require.Equal(t, "7d", parts.Retention)
	require.Equal(t, "alice", parts.OwnerID)
	require.Equal(t, file.ID.String(), parts.FileID)
	require.Equal(t, file.ObjectKey, ticket.Key)

	body := []byte("quarterly numbers")
	uploadTo(t, ticket, "application/pdf", body)

	validated, err := reg.MarkUploaded(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Equal(t, metadata.StatusValidated, validated.Status)
	require.NotNil(t, validated.SizeBytes)
	require.Equal(t, int64(len(body)), *validated.SizeBytes)
	require.Equal(t, "application/pdf", validated.MIMEType)

	// Verification is idempotent once validated.
	again, err := reg.MarkUploaded(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Equal(t, metadata.StatusValidated, again.Status)

	// The owner can fetch a working download URL.
	url, _, err := reg.IssueDownload(ctx, "alice", "alice", file.ID)
	require.NoError(t, err)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.True(t, mock.HasObject(file.ObjectKey))
}

func TestMarkUploadedWithoutUpload(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	hint := int64(1024)
	file, _, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "ghost.txt",
		SizeHint:      &hint,
	})
	require.NoError(t, err)

	// Claiming an upload that never happened fails and sticks.
	_, err = reg.MarkUploaded(ctx, "alice", file.ID)
	code, ok := metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrStorageMismatch, code)

	failed, err := reg.GetFile(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Equal(t, metadata.StatusFailed, failed.Status)
	// The size hint from the reservation does not survive a failed
	// verification; only the backend can confirm a size.
	require.Nil(t, failed.SizeBytes)

	// Failed is terminal: no retry.
	_, err = reg.MarkUploaded(ctx, "alice", file.ID)
	code, ok = metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrInvalidOperation, code)
}

// keyPersistFailStore fails a set number of UpdateFile calls, simulating a
// store outage between presigning an upload and recording the object key.
type keyPersistFailStore struct {
	metadata.Store
	failures int
}

func (s *keyPersistFailStore) UpdateFile(ctx context.Context, ownerID string, id uuid.UUID, mutate func(*metadata.File) error) (*metadata.File, error) {
	if s.failures > 0 {
		s.failures--
		return nil, &metadata.StoreError{Code: metadata.ErrTransient, Message: "store unavailable"}
	}
	return s.Store.UpdateFile(ctx, ownerID, id, mutate)
}

func TestCreateFileRollsBackWhenKeyPersistFails(t *testing.T) {
	store := &keyPersistFailStore{Store: memory.NewStore(), failures: 1}
	reg, _ := newTestRegistryWithStore(t, store)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	_, _, err = reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "draft.txt",
	})
	require.Error(t, err)

	// The reservation was rolled back, so nothing squats on the path.
	_, err = reg.GetFileByPath(ctx, "alice", "/draft.txt")
	require.True(t, metadata.IsNotFound(err))

	// A fresh create on the same path goes through.
	file, ticket, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "draft.txt",
	})
	require.NoError(t, err)
	require.NotEmpty(t, file.ObjectKey)
	require.NotNil(t, ticket)
}

func TestCreateFileValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	// Unknown owners cannot create files.
	_, _, err = reg.CreateFile(ctx, "stranger", CreateFileParams{DirectoryPath: "/", Filename: "a"})
	code, ok := metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrNotFound, code)

	// Malformed retention is rejected, never defaulted.
	_, _, err = reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "a",
		Retention:     "42d",
	})
	code, ok = metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrValidation, code)

	// So is an unknown permission.
	_, _, err = reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "a",
		Permissions:   "everyone",
	})
	code, ok = metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrValidation, code)

	// A second reservation on the same path collides.
	_, _, err = reg.CreateFile(ctx, "alice", CreateFileParams{DirectoryPath: "/docs", Filename: "one.txt"})
	require.NoError(t, err)
	_, _, err = reg.CreateFile(ctx, "alice", CreateFileParams{DirectoryPath: "/docs", Filename: "one.txt"})
	code, ok = metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrConflict, code)
}

func TestInheritPermissionSnapshot(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	_, err = reg.EnsurePath(ctx, "alice", "/shared", &metadata.DirectoryDefaults{
		Permissions: metadata.PermissionPublic,
	})
	require.NoError(t, err)

	inherited, _, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/shared",
		Filename:      "open.txt",
		Permissions:   "inherit",
	})
	require.NoError(t, err)
	require.Equal(t, metadata.PermissionPublic, inherited.Permissions)

	// The snapshot is taken at creation: flipping the directory default later
	// must not touch the file.
	_, err = reg.EnsurePath(ctx, "alice", "/shared", &metadata.DirectoryDefaults{
		Permissions: metadata.PermissionPrivate,
	})
	require.NoError(t, err)
	unchanged, err := reg.GetFile(ctx, "alice", inherited.ID)
	require.NoError(t, err)
	require.Equal(t, metadata.PermissionPublic, unchanged.Permissions)

	// Empty permission means private.
	plain, _, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/shared",
		Filename:      "closed.txt",
	})
	require.NoError(t, err)
	require.Equal(t, metadata.PermissionPrivate, plain.Permissions)
}

func TestRetentionExpiry(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	before := time.Now().UTC()
	finite, _, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "short.txt",
		Retention:     "1d",
	})
	require.NoError(t, err)
	require.NotNil(t, finite.ExpiresAt)
	require.WithinDuration(t, before.Add(24*time.Hour), *finite.ExpiresAt, time.Minute)

	infinite, _, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "keep.txt",
	})
	require.NoError(t, err)
	require.Nil(t, infinite.ExpiresAt)
	require.Equal(t, metadata.RetentionInfinite, infinite.Retention)
}

func TestUpdateFileMoveKeepsObjectKey(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	file, ticket, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/inbox",
		Filename:      "draft.txt",
	})
	require.NoError(t, err)
	uploadTo(t, ticket, "text/plain", []byte("v1"))
	_, err = reg.MarkUploaded(ctx, "alice", file.ID)
	require.NoError(t, err)

	newDir := "/archive/2026"
	newName := "final.txt"
	moved, err := reg.UpdateFile(ctx, "alice", file.ID, UpdateFileParams{
		NewDirectoryPath: &newDir,
		NewFilename:      &newName,
	})
	require.NoError(t, err)
	require.Equal(t, "/archive/2026/final.txt", moved.FullPath)
	require.Equal(t, file.ObjectKey, moved.ObjectKey)

	// The old path is free again, the new one resolves.
	_, err = reg.GetFileByPath(ctx, "alice", "/inbox/draft.txt")
	code, ok := metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrNotFound, code)
	found, err := reg.GetFileByPath(ctx, "alice", "/archive/2026/final.txt")
	require.NoError(t, err)
	require.Equal(t, file.ID, found.ID)
}

func TestDeleteFileRemovesObject(t *testing.T) {
	reg, mock := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	file, ticket, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "temp.bin",
	})
	require.NoError(t, err)
	uploadTo(t, ticket, "", []byte("bytes"))
	_, err = reg.MarkUploaded(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.True(t, mock.HasObject(file.ObjectKey))

	require.NoError(t, reg.DeleteFile(ctx, "alice", file.ID))

	// Close drains the background cleanup before we look at the backend.
	reg.Close()
	require.False(t, mock.HasObject(file.ObjectKey))
	require.Zero(t, reg.CleanupFailures())

	_, err = reg.GetFile(ctx, "alice", file.ID)
	code, ok := metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrNotFound, code)
}

func TestDeleteDirectoryCleansObjects(t *testing.T) {
	reg, mock := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	var keys []string
	for _, name := range []string{"a.txt", "b.txt"} {
		file, ticket, err := reg.CreateFile(ctx, "alice", CreateFileParams{
			DirectoryPath: "/scratch",
			Filename:      name,
		})
		require.NoError(t, err)
		uploadTo(t, ticket, "", []byte(name))
		_, err = reg.MarkUploaded(ctx, "alice", file.ID)
		require.NoError(t, err)
		keys = append(keys, file.ObjectKey)
	}

	dir, err := reg.GetDirectoryByPath(ctx, "alice", "/scratch")
	require.NoError(t, err)
	count, err := reg.DeleteDirectory(ctx, "alice", dir.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	reg.Close()
	for _, key := range keys {
		require.False(t, mock.HasObject(key), "object %s survived directory deletion", key)
	}
}

func TestIssueDownloadAccess(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	private, ticket, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "secret.txt",
	})
	require.NoError(t, err)
	uploadTo(t, ticket, "", []byte("s"))
	_, err = reg.MarkUploaded(ctx, "alice", private.ID)
	require.NoError(t, err)

	// A stranger and an anonymous requester both get not-found, never a
	// permission error.
	for _, requester := range []string{"bob", ""} {
		_, _, err := reg.IssueDownload(ctx, requester, "alice", private.ID)
		code, ok := metadata.CodeOf(err)
		require.True(t, ok)
		require.Equal(t, metadata.ErrNotFound, code)
	}

	// A public file is readable anonymously.
	public, pubTicket, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "open.txt",
		Permissions:   "public",
	})
	require.NoError(t, err)
	uploadTo(t, pubTicket, "", []byte("o"))
	_, err = reg.MarkUploaded(ctx, "alice", public.ID)
	require.NoError(t, err)

	url, _, err := reg.IssueDownload(ctx, "", "alice", public.ID)
	require.NoError(t, err)
	require.NotEmpty(t, url)

	// Reserved files are not downloadable, even by the owner.
	reserved, _, err := reg.CreateFile(ctx, "alice", CreateFileParams{
		DirectoryPath: "/",
		Filename:      "pending.txt",
	})
	require.NoError(t, err)
	_, _, err = reg.IssueDownload(ctx, "alice", "alice", reserved.ID)
	code, ok := metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrNotFound, code)
}

func TestEnsurePathIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	first, err := reg.EnsurePath(ctx, "alice", "/a/b/c", nil)
	require.NoError(t, err)
	second, err := reg.EnsurePath(ctx, "alice", "/a/b/c", nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// All ancestors exist as rows.
	subtree, err := reg.ListSubtree(ctx, "alice", "/a")
	require.NoError(t, err)
	require.Len(t, subtree, 3)
}

func TestRenameDirectoryGuardsSubtree(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.RegisterOwner(ctx, "alice")
	require.NoError(t, err)

	dir, err := reg.EnsurePath(ctx, "alice", "/a", nil)
	require.NoError(t, err)

	// The guard fires before any parent materialization, so no stray
	// directories appear under the moved subtree.
	_, err = reg.RenameDirectory(ctx, "alice", dir.ID, "/a/b/c")
	code, ok := metadata.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, metadata.ErrInvalidOperation, code)

	subtree, err := reg.ListSubtree(ctx, "alice", "/a")
	require.NoError(t, err)
	require.Len(t, subtree, 1)
}
