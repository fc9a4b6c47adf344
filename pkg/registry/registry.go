// Package registry implements the service core: directory tree management,
// the file upload lifecycle, and access resolution, coordinating the
// metadata store with the object store gateway.
//
// The registry owns the ordering rules between the two backends (metadata
// row first, object second; row removal first, object cleanup after) so that
// the worst inconsistency the system can reach is an orphaned object, never
// a dangling metadata row.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/stashd/stashd/pkg/metadata"
	"github.com/stashd/stashd/pkg/objectstore"
)

// Registry wires the metadata store and the object store gateway together
// under one environment name.
//
// Thread Safety:
// The registry holds no mutable state beyond its collaborators, which are
// themselves concurrency-safe, so all methods may be called from multiple
// goroutines.
type Registry struct {
	store       metadata.Store
	gateway     objectstore.Gateway
	environment string
	urlTTL      time.Duration
	cleanup     *cleaner
}

// Config carries the registry's own settings.
type Config struct {
	// Environment is the first object key segment (for example "prod" or
	// "staging"). Required; it may not contain '/'.
	Environment string `mapstructure:"environment"`

	// URLTTL is the presigned URL lifetime. Zero means
	// objectstore.DefaultURLTTL.
	URLTTL time.Duration `mapstructure:"url_ttl"`
}

// New creates a registry.
func New(store metadata.Store, gateway objectstore.Gateway, cfg Config) (*Registry, error) {
	if cfg.Environment == "" {
		return nil, fmt.Errorf("environment name is required")
	}
	if objectstore.ParseKey(cfg.Environment+"/x/x/x") == nil {
		return nil, fmt.Errorf("environment name %q cannot be embedded in object keys", cfg.Environment)
	}

	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = objectstore.DefaultURLTTL
	}

	return &Registry{
		store:       store,
		gateway:     gateway,
		environment: cfg.Environment,
		urlTTL:      ttl,
		cleanup:     newCleaner(gateway),
	}, nil
}

// RegisterOwner makes an owner known and materializes its root directory.
// Idempotent; called by the API layer for every authenticated request.
func (r *Registry) RegisterOwner(ctx context.Context, ownerID string) (*metadata.Owner, error) {
	owner, err := r.store.EnsureOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.UpsertDirectory(ctx, ownerID, metadata.RootPath, nil, nil); err != nil {
		return nil, err
	}
	return owner, nil
}

// Healthcheck verifies both backends can serve requests.
func (r *Registry) Healthcheck(ctx context.Context) error {
	if err := r.store.Healthcheck(ctx); err != nil {
		return fmt.Errorf("metadata store: %w", err)
	}
	if err := r.gateway.Healthcheck(ctx); err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	return nil
}

// Close drains the cleanup queue and shuts the registry down. The metadata
// store is owned by the caller and is not closed here.
func (r *Registry) Close() {
	r.cleanup.close()
}

// CleanupFailures reports how many best-effort object removals have failed
// since startup. Exposed for operational visibility.
func (r *Registry) CleanupFailures() uint64 {
	return r.cleanup.failures()
}
