package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultURLTTL is the presigned URL lifetime used when the configuration
// does not override it.
const DefaultURLTTL = time.Hour

// ErrObjectNotFound is returned by Inspect and Get when no object exists
// behind the key.
var ErrObjectNotFound = errors.New("object not found")

// UploadTicket is the capability handed to a client so it can upload content
// directly to the backend without ever touching this service's data path.
type UploadTicket struct {
	// URL accepts a single HTTP PUT of the object body until it expires.
	URL string `json:"url"`

	// Key is the object key the upload lands on.
	Key string `json:"key"`

	// ExpiresAt is when the URL stops working.
	ExpiresAt time.Time `json:"expires_at"`
}

// ObjectInfo describes an object as the backend sees it. The backend's view
// is authoritative: verification trusts these fields over anything the client
// declared.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Gateway mediates every interaction with the object storage backend.
//
// The rest of the system never sees backend SDK types or credentials; it
// deals in keys, tickets, and ObjectInfo. Upload and download URLs are
// presigned so content bytes flow client-to-backend directly.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Gateway interface {
	// IssueUploadURL returns a presigned single-PUT upload ticket for key.
	// A non-empty contentType is bound into the signature, pinning the
	// Content-Type header the client must send. Issuing a URL performs no
	// backend round trip beyond signing and never guarantees the client will
	// use it.
	IssueUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (*UploadTicket, error)

	// IssueDownloadURL returns a presigned GET URL for key. The caller is
	// responsible for access control; the URL itself grants access to anyone
	// holding it until it expires.
	IssueDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Inspect returns the backend's metadata for key, or ErrObjectNotFound
	// when no object exists. Transport failures return their own error so
	// callers can distinguish "definitely absent" from "could not check".
	Inspect(ctx context.Context, key string) (*ObjectInfo, error)

	// Remove deletes the object behind key. Removing a missing object is not
	// an error.
	Remove(ctx context.Context, key string) error

	// Put writes an object directly through the service. The presigned
	// upload path is the norm; Put exists for server-side writes such as
	// tests and imports.
	Put(ctx context.Context, key string, contentType string, body io.Reader) error

	// Get streams the object body. The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Healthcheck verifies the backend is reachable and the bucket exists.
	Healthcheck(ctx context.Context) error
}
