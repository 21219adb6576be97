// Package vfs presents the asset repository as a read/write hierarchical
// filesystem.
//
// The top level holds one directory per touched system object,
// "/idSystemObject-<id>", beneath which every latest asset version appears
// at its FilePath/FileName. Stat metadata comes from a ResourceCache.
// Reads stream stored bytes back from the storage engine. Writes are
// buffered, then committed as a new asset version under a per-object write
// lock once the stream is closed.
package vfs

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/metrics"
	"github.com/packrat/davgate/pkg/resolver"
	"github.com/packrat/davgate/pkg/storage"
	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/packrat/davgate/pkg/vocabulary"
	"github.com/packrat/davgate/pkg/writelock"
	"github.com/rs/zerolog"
)

// DefaultMaxUploadBytes bounds the in-memory upload buffer.
const DefaultMaxUploadBytes int64 = 1 << 30

// Config tunes a FileSystem. Zero values select defaults.
type Config struct {
	// FileTTL is how long file metadata is cached (default 10s)
	FileTTL time.Duration

	// MaxUploadBytes bounds each buffered upload (default 1 GiB)
	MaxUploadBytes int64

	// SceneSuffix marks scene files (default ".svx.json")
	SceneSuffix string

	// Comment is recorded on every version created through the filesystem
	Comment string
}

// Deps are the collaborators a FileSystem composes.
type Deps struct {
	Repository repository.Reader
	Engine     storage.Engine
	Vocabulary vocabulary.Cache

	// Audit defaults to audit.Nop
	Audit audit.Sink

	// Locks defaults to a fresh writelock.Manager reporting to Metrics
	Locks *writelock.Manager

	// Metrics defaults to no-op metrics
	Metrics metrics.VFSMetrics

	// Clock defaults to the real clock
	Clock clock.Clock
}

// FileSystem is the protocol-facing filesystem. Construct one per process
// and share it between protocol handlers.
type FileSystem struct {
	repo     repository.Reader
	resolver *resolver.Resolver
	cache    *ResourceCache
	engine   storage.Engine
	vocab    vocabulary.Cache
	audit    audit.Sink
	locks    *writelock.Manager
	metrics  metrics.VFSMetrics
	clock    clock.Clock
	cfg      Config
	log      zerolog.Logger

	// inflight tracks write completions
	inflight sync.WaitGroup
}

// New creates a FileSystem.
func New(deps Deps, cfg Config) (*FileSystem, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("vfs: repository is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("vfs: storage engine is required")
	}
	if deps.Vocabulary == nil {
		return nil, fmt.Errorf("vfs: vocabulary is required")
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopVFSMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Locks == nil {
		deps.Locks = writelock.NewManager(writelock.WithMetrics(deps.Metrics))
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.SceneSuffix == "" {
		cfg.SceneSuffix = vocabulary.DefaultSceneSuffix
	}

	res := resolver.New(deps.Repository)
	return &FileSystem{
		repo:     deps.Repository,
		resolver: res,
		cache:    NewResourceCache(res, cfg.FileTTL, deps.Clock, deps.Metrics),
		engine:   deps.Engine,
		vocab:    deps.Vocabulary,
		audit:    deps.Audit,
		locks:    deps.Locks,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		cfg:      cfg,
		log:      logger.With("vfs"),
	}, nil
}

// Cache exposes the resource cache.
func (fs *FileSystem) Cache() *ResourceCache { return fs.cache }

// Resolver exposes the address resolver used by the filesystem.
func (fs *FileSystem) Resolver() *resolver.Resolver { return fs.resolver }

// Wait blocks until every accepted upload has been committed or abandoned.
func (fs *FileSystem) Wait() {
	fs.inflight.Wait()
}

// Stat returns the resource at p.
func (fs *FileSystem) Stat(ctx context.Context, p string) (*Resource, error) {
	return fs.cache.Lookup(ctx, p, PropStat, Strict)
}

// Type returns the kind at p, KindUnknown when nothing is there.
func (fs *FileSystem) Type(ctx context.Context, p string) (Kind, error) {
	r, err := fs.cache.Lookup(ctx, p, PropType, TolerateMissing)
	if err != nil {
		return KindUnknown, err
	}
	return r.Kind(), nil
}

func (fs *FileSystem) Size(ctx context.Context, p string) (int64, error) {
	r, err := fs.cache.Lookup(ctx, p, PropSize, Strict)
	if err != nil {
		return 0, err
	}
	return r.Size(), nil
}

func (fs *FileSystem) ETag(ctx context.Context, p string) (string, error) {
	r, err := fs.cache.Lookup(ctx, p, PropETag, Strict)
	if err != nil {
		return "", err
	}
	return r.ETag(), nil
}

func (fs *FileSystem) CreationDate(ctx context.Context, p string) (time.Time, error) {
	r, err := fs.cache.Lookup(ctx, p, PropCreationDate, Strict)
	if err != nil {
		return time.Time{}, err
	}
	return r.Created(), nil
}

func (fs *FileSystem) LastModifiedDate(ctx context.Context, p string) (time.Time, error) {
	r, err := fs.cache.Lookup(ctx, p, PropLastModified, Strict)
	if err != nil {
		return time.Time{}, err
	}
	return r.Modified(), nil
}

// Readdir returns the child names of the directory at p.
func (fs *FileSystem) Readdir(ctx context.Context, p string) ([]string, error) {
	r, err := fs.cache.Lookup(ctx, p, PropReaddir, Strict)
	if err != nil {
		return nil, err
	}
	if !r.IsDir() {
		return nil, fmt.Errorf("%s: %w", r.Path(), ErrNotDirectory)
	}
	return r.Children(), nil
}

// Create checks p before a write and reports whether a resource already
// exists there. A missing path is not an error.
func (fs *FileSystem) Create(ctx context.Context, p string) (bool, error) {
	r, err := fs.cache.Lookup(ctx, p, PropCreate, TolerateMissing)
	if err != nil {
		return false, err
	}
	if r.IsDir() {
		return true, fmt.Errorf("%s: %w", r.Path(), ErrIsDirectory)
	}
	return r.Exists(), nil
}

// MimeType returns the content type of the file at p, derived from its
// extension. Unknown extensions map to application/octet-stream.
func (fs *FileSystem) MimeType(ctx context.Context, p string) (string, error) {
	r, err := fs.cache.Lookup(ctx, p, PropMimeType, Strict)
	if err != nil {
		return "", err
	}
	if r.IsDir() {
		return "", fmt.Errorf("%s: %w", r.Path(), ErrIsDirectory)
	}
	return MimeTypeByName(path.Base(r.Path())), nil
}

// DefaultMimeType is reported for names with no known extension.
const DefaultMimeType = "application/octet-stream"

// MimeTypeByName maps a file name to a content type by extension.
func MimeTypeByName(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		return t
	}
	return DefaultMimeType
}
