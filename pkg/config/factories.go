package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/store/blob"
	blobfs "github.com/packrat/davgate/pkg/store/blob/fs"
	blobmemory "github.com/packrat/davgate/pkg/store/blob/memory"
	blobminio "github.com/packrat/davgate/pkg/store/blob/minio"
	blobs3 "github.com/packrat/davgate/pkg/store/blob/s3"
	"github.com/packrat/davgate/pkg/store/repository"
	repobadger "github.com/packrat/davgate/pkg/store/repository/badger"
	repomemory "github.com/packrat/davgate/pkg/store/repository/memory"
)

// CreateRepository creates the asset repository selected by cfg.Type.
//
// Supported types:
//   - "memory": pkg/store/repository/memory (ephemeral)
//   - "badger": pkg/store/repository/badger (persistent)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Repository configuration
//
// Returns:
//   - repository.Store: Initialized repository, closed by the caller
//   - error: Configuration or initialization error
func CreateRepository(ctx context.Context, cfg *RepositoryConfig) (repository.Store, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return repomemory.New(), nil
	case "badger":
		return createBadgerRepository(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown repository type: %q (supported: memory, badger)", cfg.Type)
	}
}

func createBadgerRepository(ctx context.Context, options map[string]any) (repository.Store, error) {
	var storeCfg repobadger.Config
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger repository config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger repository: db_path is required")
	}

	store, err := repobadger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger repository: %w", err)
	}

	logger.Info("Badger repository opened: path=%s in_memory=%v", storeCfg.DBPath, storeCfg.InMemory)
	return store, nil
}

// CreateBlobStore creates the blob store selected by cfg.Type.
//
// Supported types:
//   - "memory": pkg/store/blob/memory (ephemeral)
//   - "filesystem": pkg/store/blob/fs (local directory)
//   - "s3": pkg/store/blob/s3 (Amazon S3 or compatible)
//   - "minio": pkg/store/blob/minio (MinIO client)
func CreateBlobStore(ctx context.Context, cfg *StorageConfig) (blob.Store, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return blobmemory.New(), nil
	case "filesystem":
		return createFilesystemBlobStore(ctx, cfg.Filesystem)
	case "s3":
		return createS3BlobStore(ctx, cfg.S3)
	case "minio":
		return createMinioBlobStore(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage type: %q (supported: memory, filesystem, s3, minio)", cfg.Type)
	}
}

func createFilesystemBlobStore(ctx context.Context, options map[string]any) (blob.Store, error) {
	type FilesystemBlobStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FilesystemBlobStoreConfig
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem storage config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem storage: path is required")
	}

	store, err := blobfs.New(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem blob store: %w", err)
	}
	return store, nil
}

func createS3BlobStore(ctx context.Context, options map[string]any) (blob.Store, error) {
	var storeCfg blobs3.Config
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 storage config: %w", err)
	}
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 storage: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 storage: region is required")
	}

	client, err := blobs3.NewClient(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := blobs3.New(ctx, client, storeCfg.Bucket, storeCfg.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}
	return store, nil
}

func createMinioBlobStore(ctx context.Context, options map[string]any) (blob.Store, error) {
	var storeCfg blobminio.Config
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode minio storage config: %w", err)
	}

	store, err := blobminio.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio blob store: %w", err)
	}

	logger.Info("MinIO blob store initialized: endpoint=%s bucket=%s prefix=%s",
		storeCfg.Endpoint, storeCfg.Bucket, storeCfg.Prefix)
	return store, nil
}

// decode maps a store section onto its typed config. Values read from YAML
// or the environment may arrive as strings, so weak typing is enabled.
func decode(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}
