package badger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/stashd/stashd/pkg/metadata"
)

// Records are stored as JSON. Metadata rows are small and read-dominated, so
// human-readable values that survive schema evolution win over a binary
// encoding here.

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeOwner(data []byte) (*metadata.Owner, error) {
	var o metadata.Owner
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode owner record: %w", err)
	}
	return &o, nil
}

func decodeDirectory(data []byte) (*metadata.Directory, error) {
	var d metadata.Directory
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode directory record: %w", err)
	}
	return &d, nil
}

func decodeFile(data []byte) (*metadata.File, error) {
	var f metadata.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode file record: %w", err)
	}
	return &f, nil
}

// encodeDirLocation packs an (owner, path) pair into a di: mapping value.
// Owner ids never contain ':' so the first colon is an unambiguous separator.
func encodeDirLocation(ownerID, fullPath string) []byte {
	return []byte(ownerID + ":" + fullPath)
}

// decodeDirLocation unpacks a di: mapping value.
func decodeDirLocation(data []byte) (ownerID, fullPath string, err error) {
	s := string(data)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("malformed directory location entry: %q", s)
	}
	return s[:idx], s[idx+1:], nil
}

// encodeFileID packs a file UUID into an index entry value.
func encodeFileID(id uuid.UUID) []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

// decodeFileID unpacks a file UUID from an index entry value.
func decodeFileID(data []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed file index entry: %w", err)
	}
	return id, nil
}

// getValue reads a key inside a transaction and returns its value copy.
// Returns badger.ErrKeyNotFound untouched so callers can map it to the
// domain's not-found error with the right entity name.
func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
