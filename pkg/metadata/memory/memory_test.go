package memory

import (
	"testing"

	"github.com/stashd/stashd/pkg/metadata"
	metadatatesting "github.com/stashd/stashd/pkg/metadata/testing"
)

// TestMemoryStore runs the complete Store test suite against the in-memory
// implementation.
func TestMemoryStore(t *testing.T) {
	suite := &metadatatesting.StoreTestSuite{
		NewStore: func(t *testing.T) metadata.Store {
			return NewStore()
		},
	}

	suite.Run(t)
}
