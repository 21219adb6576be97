// Package engine is the reference storage.Engine: content-addressed blobs
// plus repository bookkeeping.
package engine

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/packrat/davgate/internal/clock"
	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/storage"
	"github.com/packrat/davgate/pkg/store/blob"
	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/zeebo/blake3"
)

// Engine hashes uploaded bytes with BLAKE3, stores them once per distinct
// hash and records a new asset version pointing at the blob.
//
// A blob written for an upload whose repository commit then fails is left
// behind; pkg/gc removes such orphans.
type Engine struct {
	repo   repository.Store
	blobs  blob.Store
	clock  clock.Clock
	pinner Pinner
}

// Pinner keeps a blob key away from garbage collection while an ingestion
// is using it. *gc.Collector implements it.
type Pinner interface {
	Pin(key string) (release func())
}

type noPinner struct{}

func (noPinner) Pin(string) func() { return func() {} }

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for version timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPinner makes ingestions pin their blob key from the existence check
// until the version is recorded.
func WithPinner(p Pinner) Option {
	return func(e *Engine) { e.pinner = p }
}

// New creates an engine over a repository and a blob store.
func New(repo repository.Store, blobs blob.Store, opts ...Option) *Engine {
	e := &Engine{repo: repo, blobs: blobs, clock: clock.Real(), pinner: noPinner{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hash returns the hex BLAKE3-256 digest of data.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (e *Engine) ReadAssetVersion(ctx context.Context, version *repository.AssetVersion) (io.ReadCloser, error) {
	if version == nil {
		return nil, fmt.Errorf("asset version is required")
	}
	if version.StorageKey == "" {
		return nil, fmt.Errorf("asset version %d: %w", version.IDAssetVersion, storage.ErrNotIngested)
	}

	rc, err := e.blobs.Get(ctx, version.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset version %d: %w", version.IDAssetVersion, err)
	}
	return rc, nil
}

func (e *Engine) IngestStreamOrFile(ctx context.Context, desc *storage.IngestDescriptor) ([]*repository.AssetVersion, error) {
	if err := validate(desc); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 1: Buffer and hash
	// ========================================================================

	hasher := blake3.New()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.TeeReader(desc.Reader, hasher)); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if desc.Size >= 0 && int64(buf.Len()) != desc.Size {
		return nil, fmt.Errorf("upload truncated: expected %d bytes, got %d", desc.Size, buf.Len())
	}
	hash := hex.EncodeToString(hasher.Sum(nil))

	// ========================================================================
	// Step 2: Store the blob once per hash
	// ========================================================================

	release := e.pinner.Pin(hash)
	defer release()

	exists, err := e.blobs.Exists(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check blob: %w", err)
	}
	if !exists {
		if err := e.blobs.Put(ctx, hash, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
			return nil, fmt.Errorf("failed to store blob: %w", err)
		}
	}

	// ========================================================================
	// Step 3: Find or create the asset
	// ========================================================================

	asset, err := e.resolveAsset(ctx, desc)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Append the version
	// ========================================================================

	version := &repository.AssetVersion{
		IDAsset:       asset.IDAsset,
		FileName:      asset.FileName,
		FilePath:      asset.FilePath,
		IDUserCreator: desc.IDUserCreator,
		DateCreated:   e.clock.Now(),
		StorageHash:   hash,
		StorageSize:   int64(buf.Len()),
		StorageKey:    hash,
		Ingested:      true,
		Comment:       desc.Comment,
	}
	if err := e.repo.CreateAssetVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to record asset version: %w", err)
	}

	logger.Debug("Ingested %s as asset %d version %d (%d bytes, hash %s)",
		version.NormalizedPath(), asset.IDAsset, version.Version, version.StorageSize, hash[:12])

	return []*repository.AssetVersion{version}, nil
}

func validate(desc *storage.IngestDescriptor) error {
	if desc == nil || desc.Reader == nil {
		return fmt.Errorf("ingest descriptor requires a reader")
	}
	if desc.Asset == nil {
		if desc.Owner == nil {
			return fmt.Errorf("ingest descriptor requires an owner or an existing asset")
		}
		if strings.TrimSpace(desc.FileName) == "" {
			return fmt.Errorf("ingest descriptor requires a file name")
		}
	}
	return nil
}

func (e *Engine) resolveAsset(ctx context.Context, desc *storage.IngestDescriptor) (*repository.Asset, error) {
	if desc.Asset != nil {
		return desc.Asset, nil
	}

	owner := desc.Owner.IDSystemObject
	asset, err := e.repo.FindAsset(ctx, owner, desc.FilePath, desc.FileName)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up asset: %w", err)
	}

	asset = &repository.Asset{
		FileName:            desc.FileName,
		FilePath:            desc.FilePath,
		IDAssetType:         desc.IDAssetType,
		IDSystemObjectOwner: owner,
	}
	if err := e.repo.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}
	return asset, nil
}

var _ storage.Engine = (*Engine)(nil)
