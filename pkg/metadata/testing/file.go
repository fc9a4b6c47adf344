package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stashd/stashd/pkg/metadata"
)

// RunFileTests executes all file record tests.
func (suite *StoreTestSuite) RunFileTests(t *testing.T) {
	t.Run("PutAndLookup", suite.testFilePutAndLookup)
	t.Run("ErrorPathTaken", suite.testFilePathConflict)
	t.Run("ErrorMissingDirectory", suite.testFileMissingDirectory)
	t.Run("ListOrderedByFilename", suite.testFileListOrdering)
	t.Run("UpdateMovesIndexes", suite.testFileUpdateMove)
	t.Run("UpdateObjectKeyImmutable", suite.testFileObjectKeyImmutable)
	t.Run("UpdateMutateErrorAborts", suite.testFileMutateAbort)
	t.Run("Delete", suite.testFileDelete)
	t.Run("CrossOwnerIsolation", suite.testFileCrossOwner)
}

func (suite *StoreTestSuite) testFilePutAndLookup(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/docs")
	file := createTestFile(t, store, dir, "readme.txt")

	byID, err := store.GetFile(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Equal(t, "/docs/readme.txt", byID.FullPath)
	require.Equal(t, metadata.StatusReserved, byID.Status)

	byPath, err := store.GetFileByPath(ctx, "alice", "/docs/readme.txt")
	require.NoError(t, err)
	require.Equal(t, file.ID, byPath.ID)
}

func (suite *StoreTestSuite) testFilePathConflict(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/docs")
	createTestFile(t, store, dir, "readme.txt")

	dup := &metadata.File{
		ID:          uuid.New(),
		OwnerID:     "alice",
		DirectoryID: dir.ID,
		Filename:    "readme.txt",
		FullPath:    "/docs/readme.txt",
		Permissions: metadata.PermissionPrivate,
		Status:      metadata.StatusReserved,
		Retention:   metadata.RetentionInfinite,
	}
	AssertErrorCode(t, metadata.ErrConflict, store.PutFile(ctx, dup))

	// A directory at the file's path blocks the insert as well.
	materializePath(t, store, "alice", "/docs/taken")
	blocked := &metadata.File{
		ID:          uuid.New(),
		OwnerID:     "alice",
		DirectoryID: dir.ID,
		Filename:    "taken",
		FullPath:    "/docs/taken",
		Permissions: metadata.PermissionPrivate,
		Status:      metadata.StatusReserved,
		Retention:   metadata.RetentionInfinite,
	}
	AssertErrorCode(t, metadata.ErrConflict, store.PutFile(ctx, blocked))
}

func (suite *StoreTestSuite) testFileMissingDirectory(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()

	createOwnerRoot(t, store, "alice")
	orphan := &metadata.File{
		ID:          uuid.New(),
		OwnerID:     "alice",
		DirectoryID: uuid.New(),
		Filename:    "lost.txt",
		FullPath:    "/lost.txt",
		Permissions: metadata.PermissionPrivate,
		Status:      metadata.StatusReserved,
		Retention:   metadata.RetentionInfinite,
	}
	AssertErrorCode(t, metadata.ErrNotFound, store.PutFile(context.Background(), orphan))
}

func (suite *StoreTestSuite) testFileListOrdering(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/docs")
	createTestFile(t, store, dir, "zebra.txt")
	createTestFile(t, store, dir, "alpha.txt")
	createTestFile(t, store, dir, "mid.txt")

	files, err := store.ListFilesByDirectory(ctx, "alice", dir.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, "alpha.txt", files[0].Filename)
	require.Equal(t, "mid.txt", files[1].Filename)
	require.Equal(t, "zebra.txt", files[2].Filename)
}

func (suite *StoreTestSuite) testFileUpdateMove(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	src := materializePath(t, store, "alice", "/src")
	dst := materializePath(t, store, "alice", "/dst")
	file := createTestFile(t, store, src, "move.txt")

	updated, err := store.UpdateFile(ctx, "alice", file.ID, func(f *metadata.File) error {
		f.DirectoryID = dst.ID
		f.Filename = "moved.txt"
		f.FullPath = metadata.JoinPath(dst.FullPath, "moved.txt")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "/dst/moved.txt", updated.FullPath)

	// Old location is gone, new one resolves, directory listing follows.
	_, err = store.GetFileByPath(ctx, "alice", "/src/move.txt")
	AssertErrorCode(t, metadata.ErrNotFound, err)

	moved, err := store.GetFileByPath(ctx, "alice", "/dst/moved.txt")
	require.NoError(t, err)
	require.Equal(t, file.ID, moved.ID)

	srcFiles, err := store.ListFilesByDirectory(ctx, "alice", src.ID)
	require.NoError(t, err)
	require.Empty(t, srcFiles)

	dstFiles, err := store.ListFilesByDirectory(ctx, "alice", dst.ID)
	require.NoError(t, err)
	require.Len(t, dstFiles, 1)
}

func (suite *StoreTestSuite) testFileObjectKeyImmutable(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/docs")
	file := createTestFile(t, store, dir, "keyed.txt")

	// First assignment is allowed.
	_, err := store.UpdateFile(ctx, "alice", file.ID, func(f *metadata.File) error {
		f.ObjectKey = "prod/infinite/alice/" + f.ID.String()
		return nil
	})
	require.NoError(t, err)

	// Any later change is rejected.
	_, err = store.UpdateFile(ctx, "alice", file.ID, func(f *metadata.File) error {
		f.ObjectKey = "prod/infinite/alice/other"
		return nil
	})
	AssertErrorCode(t, metadata.ErrInvalidOperation, err)
}

func (suite *StoreTestSuite) testFileMutateAbort(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/docs")
	file := createTestFile(t, store, dir, "stable.txt")

	abort := &metadata.StoreError{Code: metadata.ErrInvalidOperation, Message: "nope"}
	_, err := store.UpdateFile(ctx, "alice", file.ID, func(f *metadata.File) error {
		f.Status = metadata.StatusValidated
		return abort
	})
	AssertErrorCode(t, metadata.ErrInvalidOperation, err)

	unchanged, err := store.GetFile(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Equal(t, metadata.StatusReserved, unchanged.Status)
}

func (suite *StoreTestSuite) testFileDelete(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/docs")
	file := createTestFile(t, store, dir, "gone.txt")

	deleted, err := store.DeleteFile(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Equal(t, file.ID, deleted.ID)

	_, err = store.GetFile(ctx, "alice", file.ID)
	AssertErrorCode(t, metadata.ErrNotFound, err)
	_, err = store.GetFileByPath(ctx, "alice", "/docs/gone.txt")
	AssertErrorCode(t, metadata.ErrNotFound, err)

	// The path can be reused after deletion.
	createTestFile(t, store, dir, "gone.txt")
}

func (suite *StoreTestSuite) testFileCrossOwner(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/docs")
	file := createTestFile(t, store, dir, "secret.txt")
	createOwnerRoot(t, store, "bob")

	_, err := store.GetFile(ctx, "bob", file.ID)
	AssertErrorCode(t, metadata.ErrNotFound, err)

	_, err = store.UpdateFile(ctx, "bob", file.ID, func(f *metadata.File) error {
		f.Status = metadata.StatusValidated
		return nil
	})
	AssertErrorCode(t, metadata.ErrNotFound, err)

	_, err = store.DeleteFile(ctx, "bob", file.ID)
	AssertErrorCode(t, metadata.ErrNotFound, err)

	// Alice still sees the untouched file.
	still, err := store.GetFile(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Equal(t, metadata.StatusReserved, still.Status)
}
