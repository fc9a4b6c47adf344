package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stashd/stashd/pkg/metadata"
)

// RunOwnerTests executes all owner registration tests.
func (suite *StoreTestSuite) RunOwnerTests(t *testing.T) {
	t.Run("EnsureIsIdempotent", suite.testEnsureOwnerIdempotent)
	t.Run("GetUnknownOwner", suite.testGetUnknownOwner)
	t.Run("RejectsMalformedIDs", suite.testOwnerValidation)
}

// RunDirectoryTests executes all directory creation and lookup tests.
func (suite *StoreTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("UpsertIsConvergent", suite.testUpsertConvergent)
	t.Run("MaterializeChain", suite.testMaterializeChain)
	t.Run("DefaultsOnlyAppliedWhenGiven", suite.testUpsertDefaults)
	t.Run("LookupNormalizesPaths", suite.testLookupNormalization)
	t.Run("ListByParent", suite.testListByParent)
	t.Run("ListRecursive", suite.testListRecursive)
	t.Run("CrossOwnerIsolation", suite.testDirectoryCrossOwner)
}

// RunRenameTests executes all rename cascade tests.
func (suite *StoreTestSuite) RunRenameTests(t *testing.T) {
	t.Run("CascadesToDescendants", suite.testRenameCascade)
	t.Run("PrefixMatchIsExact", suite.testRenamePrefixExactness)
	t.Run("NoOpToSamePath", suite.testRenameNoOp)
	t.Run("ErrorIntoOwnSubtree", suite.testRenameIntoOwnSubtree)
	t.Run("ErrorTargetTaken", suite.testRenameConflict)
	t.Run("ErrorRoot", suite.testRenameRoot)
	t.Run("ErrorMissingNewParent", suite.testRenameMissingParent)
}

// RunRemoveTests executes all directory removal tests.
func (suite *StoreTestSuite) RunRemoveTests(t *testing.T) {
	t.Run("RemovesFilesWithDirectory", suite.testRemoveWithFiles)
	t.Run("ErrorChildDirectories", suite.testRemoveNotEmpty)
	t.Run("ErrorRoot", suite.testRemoveRoot)
}

// ============================================================================
// Owner Tests
// ============================================================================

func (suite *StoreTestSuite) testEnsureOwnerIdempotent(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	first, err := store.EnsureOwner(ctx, "alice")
	require.NoError(t, err)

	second, err := store.EnsureOwner(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := store.GetOwner(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", got.ID)
}

func (suite *StoreTestSuite) testGetUnknownOwner(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()

	_, err := store.GetOwner(context.Background(), "nobody")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testOwnerValidation(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, id := range []string{"", "a/b", "a:b", "a\x00b"} {
		_, err := store.EnsureOwner(ctx, id)
		AssertErrorCode(t, metadata.ErrValidation, err)
	}
}

// ============================================================================
// Directory Tests
// ============================================================================

func (suite *StoreTestSuite) testUpsertConvergent(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	root := createOwnerRoot(t, store, "alice")
	rootID := root.ID

	first, err := store.UpsertDirectory(ctx, "alice", "/docs", &rootID, nil)
	require.NoError(t, err)

	second, err := store.UpsertDirectory(ctx, "alice", "/docs", &rootID, nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// The root upsert converges too.
	rootAgain, err := store.UpsertDirectory(ctx, "alice", "/", nil, nil)
	require.NoError(t, err)
	require.Equal(t, root.ID, rootAgain.ID)
}

func (suite *StoreTestSuite) testMaterializeChain(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	leaf := materializePath(t, store, "alice", "/a/b/c")
	require.Equal(t, "/a/b/c", leaf.FullPath)

	// Every intermediate segment exists as its own row with the right parent.
	b, err := store.GetDirectoryByPath(ctx, "alice", "/a/b")
	require.NoError(t, err)
	a, err := store.GetDirectoryByPath(ctx, "alice", "/a")
	require.NoError(t, err)
	root, err := store.GetDirectoryByPath(ctx, "alice", "/")
	require.NoError(t, err)

	require.Nil(t, root.ParentID)
	require.NotNil(t, a.ParentID)
	require.Equal(t, root.ID, *a.ParentID)
	require.NotNil(t, b.ParentID)
	require.Equal(t, a.ID, *b.ParentID)
	require.NotNil(t, leaf.ParentID)
	require.Equal(t, b.ID, *leaf.ParentID)
}

func (suite *StoreTestSuite) testUpsertDefaults(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	root := createOwnerRoot(t, store, "alice")
	rootID := root.ID

	dir, err := store.UpsertDirectory(ctx, "alice", "/shared", &rootID, &metadata.DirectoryDefaults{
		Permissions: metadata.PermissionPublic,
		Retention:   metadata.Retention7Days,
	})
	require.NoError(t, err)
	require.Equal(t, metadata.PermissionPublic, dir.DefaultPermissions)
	require.Equal(t, metadata.Retention7Days, dir.DefaultRetention)

	// Upsert without defaults leaves the row untouched.
	again, err := store.UpsertDirectory(ctx, "alice", "/shared", &rootID, nil)
	require.NoError(t, err)
	require.Equal(t, metadata.PermissionPublic, again.DefaultPermissions)
	require.Equal(t, metadata.Retention7Days, again.DefaultRetention)

	// Explicit defaults update the existing row.
	updated, err := store.UpsertDirectory(ctx, "alice", "/shared", &rootID, &metadata.DirectoryDefaults{
		Permissions: metadata.PermissionPrivate,
	})
	require.NoError(t, err)
	require.Equal(t, metadata.PermissionPrivate, updated.DefaultPermissions)
	require.Equal(t, metadata.Retention7Days, updated.DefaultRetention)
}

func (suite *StoreTestSuite) testLookupNormalization(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	materializePath(t, store, "alice", "/a/b")

	got, err := store.GetDirectoryByPath(ctx, "alice", "//a///b/")
	require.NoError(t, err)
	require.Equal(t, "/a/b", got.FullPath)

	_, err = store.GetDirectoryByPath(ctx, "alice", "/a/../b")
	AssertErrorCode(t, metadata.ErrValidation, err)
}

func (suite *StoreTestSuite) testListByParent(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	materializePath(t, store, "alice", "/a/x")
	materializePath(t, store, "alice", "/a/y/deep")
	materializePath(t, store, "alice", "/b")

	a, err := store.GetDirectoryByPath(ctx, "alice", "/a")
	require.NoError(t, err)

	aID := a.ID
	children, err := store.ListDirectories(ctx, "alice", metadata.DirectoryFilter{ParentID: &aID})
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, "/a/x", children[0].FullPath)
	require.Equal(t, "/a/y", children[1].FullPath)
}

func (suite *StoreTestSuite) testListRecursive(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	materializePath(t, store, "alice", "/a/x/1")
	materializePath(t, store, "alice", "/a/y")
	materializePath(t, store, "alice", "/ab")

	dirs, err := store.ListDirectories(ctx, "alice", metadata.DirectoryFilter{Path: "/a", Recursive: true})
	require.NoError(t, err)

	paths := make([]string, len(dirs))
	for i, d := range dirs {
		paths[i] = d.FullPath
	}
	// "/ab" shares the string prefix but not the path prefix.
	require.Equal(t, []string{"/a", "/a/x", "/a/x/1", "/a/y"}, paths)

	// Recursive from the root covers everything, with the root itself
	// appearing exactly once.
	all, err := store.ListDirectories(ctx, "alice", metadata.DirectoryFilter{Path: "/", Recursive: true})
	require.NoError(t, err)

	allPaths := make([]string, len(all))
	for i, d := range all {
		allPaths[i] = d.FullPath
	}
	require.Equal(t, []string{"/", "/a", "/a/x", "/a/x/1", "/a/y", "/ab"}, allPaths)
}

func (suite *StoreTestSuite) testDirectoryCrossOwner(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/private")
	createOwnerRoot(t, store, "bob")

	// Another owner's directory id behaves exactly like a missing id.
	_, err := store.GetDirectory(ctx, "bob", dir.ID)
	AssertErrorCode(t, metadata.ErrNotFound, err)

	_, err = store.GetDirectoryByPath(ctx, "bob", "/private")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

// ============================================================================
// Rename Tests
// ============================================================================

func (suite *StoreTestSuite) testRenameCascade(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	deep := materializePath(t, store, "alice", "/old/sub")
	old, err := store.GetDirectoryByPath(ctx, "alice", "/old")
	require.NoError(t, err)
	file := createTestFile(t, store, deep, "note.txt")

	renamed, err := store.RenameDirectory(ctx, "alice", old.ID, "/new")
	require.NoError(t, err)
	require.Equal(t, "/new", renamed.FullPath)

	// Descendant directory and file paths were rewritten in the same move.
	sub, err := store.GetDirectoryByPath(ctx, "alice", "/new/sub")
	require.NoError(t, err)
	require.Equal(t, deep.ID, sub.ID)

	moved, err := store.GetFileByPath(ctx, "alice", "/new/sub/note.txt")
	require.NoError(t, err)
	require.Equal(t, file.ID, moved.ID)
	require.Equal(t, deep.ID, moved.DirectoryID)

	_, err = store.GetDirectoryByPath(ctx, "alice", "/old")
	AssertErrorCode(t, metadata.ErrNotFound, err)
	_, err = store.GetFileByPath(ctx, "alice", "/old/sub/note.txt")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testRenamePrefixExactness(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	doc := materializePath(t, store, "alice", "/doc")
	documents := materializePath(t, store, "alice", "/documents")
	bystander := createTestFile(t, store, documents, "keep.txt")

	_, err := store.RenameDirectory(ctx, "alice", doc.ID, "/papers")
	require.NoError(t, err)

	// "/documents" is not under "/doc" and must be untouched.
	unchanged, err := store.GetDirectoryByPath(ctx, "alice", "/documents")
	require.NoError(t, err)
	require.Equal(t, documents.ID, unchanged.ID)

	still, err := store.GetFileByPath(ctx, "alice", "/documents/keep.txt")
	require.NoError(t, err)
	require.Equal(t, bystander.ID, still.ID)
}

func (suite *StoreTestSuite) testRenameNoOp(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()

	dir := materializePath(t, store, "alice", "/same")

	got, err := store.RenameDirectory(context.Background(), "alice", dir.ID, "/same")
	require.NoError(t, err)
	require.Equal(t, dir.ID, got.ID)
	require.Equal(t, "/same", got.FullPath)
}

func (suite *StoreTestSuite) testRenameIntoOwnSubtree(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()

	materializePath(t, store, "alice", "/a/b")
	a, err := store.GetDirectoryByPath(context.Background(), "alice", "/a")
	require.NoError(t, err)

	_, err = store.RenameDirectory(context.Background(), "alice", a.ID, "/a/b/c")
	AssertErrorCode(t, metadata.ErrInvalidOperation, err)
}

func (suite *StoreTestSuite) testRenameConflict(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	src := materializePath(t, store, "alice", "/src")
	materializePath(t, store, "alice", "/taken")

	_, err := store.RenameDirectory(ctx, "alice", src.ID, "/taken")
	AssertErrorCode(t, metadata.ErrConflict, err)

	// A file at the target path blocks the rename too.
	root, err := store.GetDirectoryByPath(ctx, "alice", "/")
	require.NoError(t, err)
	createTestFile(t, store, root, "blocked")

	_, err = store.RenameDirectory(ctx, "alice", src.ID, "/blocked")
	AssertErrorCode(t, metadata.ErrConflict, err)
}

func (suite *StoreTestSuite) testRenameRoot(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()

	root := createOwnerRoot(t, store, "alice")

	_, err := store.RenameDirectory(context.Background(), "alice", root.ID, "/elsewhere")
	AssertErrorCode(t, metadata.ErrInvalidOperation, err)
}

func (suite *StoreTestSuite) testRenameMissingParent(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()

	dir := materializePath(t, store, "alice", "/src")

	_, err := store.RenameDirectory(context.Background(), "alice", dir.ID, "/missing/dst")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

// ============================================================================
// Remove Tests
// ============================================================================

func (suite *StoreTestSuite) testRemoveWithFiles(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	dir := materializePath(t, store, "alice", "/tmp")
	f1 := createTestFile(t, store, dir, "a.txt")
	f2 := createTestFile(t, store, dir, "b.txt")

	removed, err := store.RemoveDirectory(ctx, "alice", dir.ID)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	require.Equal(t, f1.ID, removed[0].ID)
	require.Equal(t, f2.ID, removed[1].ID)

	_, err = store.GetDirectoryByPath(ctx, "alice", "/tmp")
	AssertErrorCode(t, metadata.ErrNotFound, err)
	_, err = store.GetFile(ctx, "alice", f1.ID)
	AssertErrorCode(t, metadata.ErrNotFound, err)
	_, err = store.GetFileByPath(ctx, "alice", "/tmp/b.txt")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testRemoveNotEmpty(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	materializePath(t, store, "alice", "/a/b")
	a, err := store.GetDirectoryByPath(ctx, "alice", "/a")
	require.NoError(t, err)

	_, err = store.RemoveDirectory(ctx, "alice", a.ID)
	AssertErrorCode(t, metadata.ErrNotEmpty, err)

	// Still there.
	_, err = store.GetDirectoryByPath(ctx, "alice", "/a")
	require.NoError(t, err)
}

func (suite *StoreTestSuite) testRemoveRoot(t *testing.T) {
	store := suite.NewStore(t)
	defer store.Close()

	root := createOwnerRoot(t, store, "alice")

	_, err := store.RemoveDirectory(context.Background(), "alice", root.ID)
	AssertErrorCode(t, metadata.ErrInvalidOperation, err)
}
