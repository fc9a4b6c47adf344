package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/stashd/stashd/pkg/metadata"
	badgerstore "github.com/stashd/stashd/pkg/metadata/badger"
	"github.com/stashd/stashd/pkg/metadata/memory"
	"github.com/stashd/stashd/pkg/objectstore"
	s3gateway "github.com/stashd/stashd/pkg/objectstore/s3"
)

// CreateMetadataStore builds the configured metadata store.
//
// Supported types:
//   - "memory": in-memory store, nothing survives a restart
//   - "badger": persistent BadgerDB store (pkg/metadata/badger)
//
// Returns:
//   - metadata.Store: Initialized store ready for use
//   - error: Unknown type, bad options, or initialization failure
func CreateMetadataStore(ctx context.Context, cfg *Config) (metadata.Store, error) {
	switch cfg.Metadata.Type {
	case "memory":
		return memory.NewStore(), nil

	case "badger":
		var storeCfg badgerstore.Config
		if err := decodeOptions(cfg.Metadata.Badger, &storeCfg); err != nil {
			return nil, fmt.Errorf("invalid badger configuration: %w", err)
		}
		store, err := badgerstore.NewStore(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Metadata.Type)
	}
}

// CreateGateway builds the S3 object store gateway from the configuration.
func CreateGateway(ctx context.Context, cfg *Config) (objectstore.Gateway, error) {
	var clientCfg s3gateway.ClientConfig
	if err := decodeOptions(cfg.ObjectStore.S3, &clientCfg); err != nil {
		return nil, fmt.Errorf("invalid s3 configuration: %w", err)
	}

	client, err := s3gateway.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	gateway, err := s3gateway.NewGateway(ctx, s3gateway.Config{
		Client: client,
		Bucket: cfg.ObjectStore.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store gateway: %w", err)
	}
	return gateway, nil
}

// decodeOptions maps a type-specific option map onto its config struct,
// honoring mapstructure tags.
func decodeOptions(options map[string]any, target any) error {
	if options == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}
