// Package testing provides a reusable conformance suite for metadata.Store
// implementations.
//
// The suite tests the interface contract, not implementation details, so the
// same tests run against the in-memory store and the BadgerDB store. Any
// future backend gets full coverage by plugging a factory into StoreTestSuite.
package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stashd/stashd/pkg/metadata"
)

// StoreTestSuite exercises the metadata.Store contract.
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh Store instance for
	// each test. This ensures test isolation.
	NewStore func(t *testing.T) metadata.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Owner", suite.RunOwnerTests)
	t.Run("Directory", suite.RunDirectoryTests)
	t.Run("Rename", suite.RunRenameTests)
	t.Run("Remove", suite.RunRemoveTests)
	t.Run("File", suite.RunFileTests)
	t.Run("Healthcheck", suite.RunHealthcheckTests)
}

// RunHealthcheckTests verifies the store reports healthy while open.
func (suite *StoreTestSuite) RunHealthcheckTests(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()

	require.NoError(t, store.Healthcheck(context.Background()))
}

// ============================================================================
// Shared helpers
// ============================================================================

// AssertErrorCode fails the test unless err is a StoreError carrying the
// expected code.
func AssertErrorCode(t *testing.T, expected metadata.ErrorCode, err error) {
	t.Helper()
	require.Error(t, err)
	code, ok := metadata.CodeOf(err)
	require.True(t, ok, "expected a StoreError, got %T: %v", err, err)
	require.Equal(t, expected, code, "unexpected error code for: %v", err)
}

// createOwnerRoot registers an owner and materializes its root directory.
func createOwnerRoot(t *testing.T, store metadata.Store, ownerID string) *metadata.Directory {
	t.Helper()
	ctx := context.Background()

	_, err := store.EnsureOwner(ctx, ownerID)
	require.NoError(t, err)

	root, err := store.UpsertDirectory(ctx, ownerID, metadata.RootPath, nil, nil)
	require.NoError(t, err)
	return root
}

// materializePath creates every directory along path (root included) and
// returns the leaf.
func materializePath(t *testing.T, store metadata.Store, ownerID, path string) *metadata.Directory {
	t.Helper()
	ctx := context.Background()

	current := createOwnerRoot(t, store, ownerID)
	for _, prefix := range metadata.PathPrefixes(path) {
		parentID := current.ID
		next, err := store.UpsertDirectory(ctx, ownerID, prefix, &parentID, nil)
		require.NoError(t, err)
		current = next
	}
	return current
}

// createTestFile inserts a reserved file row inside dir.
func createTestFile(t *testing.T, store metadata.Store, dir *metadata.Directory, filename string) *metadata.File {
	t.Helper()

	file := &metadata.File{
		ID:          uuid.New(),
		OwnerID:     dir.OwnerID,
		DirectoryID: dir.ID,
		Filename:    filename,
		FullPath:    metadata.JoinPath(dir.FullPath, filename),
		Permissions: metadata.PermissionPrivate,
		Status:      metadata.StatusReserved,
		Retention:   metadata.RetentionInfinite,
	}
	require.NoError(t, store.PutFile(context.Background(), file))
	return file
}
