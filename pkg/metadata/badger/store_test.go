package badger

import (
	"context"
	"testing"

	"github.com/stashd/stashd/pkg/metadata"
	metadatatesting "github.com/stashd/stashd/pkg/metadata/testing"
)

// TestBadgerStore runs the complete Store test suite against the BadgerDB
// implementation, each test on a fresh database directory.
func TestBadgerStore(t *testing.T) {
	suite := &metadatatesting.StoreTestSuite{
		NewStore: func(t *testing.T) metadata.Store {
			store, err := NewStore(context.Background(), Config{DBPath: t.TempDir()})
			if err != nil {
				t.Fatalf("failed to open badger store: %v", err)
			}
			return store
		},
	}

	suite.Run(t)
}

// TestBadgerStoreReopen verifies records survive a close/reopen cycle.
func TestBadgerStoreReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := t.TempDir()

	store, err := NewStore(ctx, Config{DBPath: dbPath})
	if err != nil {
		t.Fatalf("failed to open badger store: %v", err)
	}

	if _, err := store.EnsureOwner(ctx, "alice"); err != nil {
		t.Fatalf("failed to register owner: %v", err)
	}
	root, err := store.UpsertDirectory(ctx, "alice", "/", nil, nil)
	if err != nil {
		t.Fatalf("failed to create root: %v", err)
	}
	rootID := root.ID
	dir, err := store.UpsertDirectory(ctx, "alice", "/docs", &rootID, nil)
	if err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := NewStore(ctx, Config{DBPath: dbPath})
	if err != nil {
		t.Fatalf("failed to reopen badger store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetDirectoryByPath(ctx, "alice", "/docs")
	if err != nil {
		t.Fatalf("directory missing after reopen: %v", err)
	}
	if got.ID != dir.ID {
		t.Errorf("directory id changed across reopen: got %s, want %s", got.ID, dir.ID)
	}
}
