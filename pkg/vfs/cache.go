package vfs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/metrics"
	"github.com/packrat/davgate/pkg/resolver"
	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultFileTTL is how long a synthesized file resource is trusted.
const DefaultFileTTL = 10 * time.Second

// LookupMode selects what Lookup does when a path has no resource.
type LookupMode int

const (
	// Strict fails with ErrNotFound
	Strict LookupMode = iota

	// TolerateMissing returns an uncached zero-size placeholder
	TolerateMissing
)

// Property names the stat attribute a lookup serves. It only labels metrics.
type Property string

const (
	PropType         Property = "type"
	PropSize         Property = "size"
	PropETag         Property = "etag"
	PropCreationDate Property = "creation_date"
	PropLastModified Property = "last_modified"
	PropReaddir      Property = "readdir"
	PropCreate       Property = "create"
	PropMimeType     Property = "mime_type"
	PropStat         Property = "stat"
)

// ResourceCache synthesizes stat metadata from resolver output and memoizes
// it per path.
//
// On a miss the cache resolves every latest asset version of the owning
// system object at once (a fan-out), stores a file resource per version and
// links each one into its ancestor directories. Concurrent misses under the
// same system object share one fan-out.
//
// Thread Safety:
// Safe for concurrent use.
type ResourceCache struct {
	resolver  *resolver.Resolver
	resources *xsync.Map[string, *Resource]
	group     singleflight.Group
	fileTTL   time.Duration
	clock     clock.Clock
	metrics   metrics.VFSMetrics
	log       zerolog.Logger
}

// NewResourceCache creates a cache holding only the root directory.
// A non-positive fileTTL selects DefaultFileTTL; nil clock and metrics
// select the real clock and no-op metrics.
func NewResourceCache(res *resolver.Resolver, fileTTL time.Duration, clk clock.Clock, m metrics.VFSMetrics) *ResourceCache {
	if fileTTL <= 0 {
		fileTTL = DefaultFileTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	if m == nil {
		m = metrics.NewNoopVFSMetrics()
	}

	c := &ResourceCache{
		resolver:  res,
		resources: xsync.NewMap[string, *Resource](),
		fileTTL:   fileTTL,
		clock:     clk,
		metrics:   m,
		log:       logger.With("vfs"),
	}
	c.resources.Store("/", newDirectory("/", clk.Now()))
	return c
}

// SystemObjectDir returns the directory path of a system object.
func SystemObjectDir(id int64) string {
	return "/" + resolver.SystemObjectDirPrefix + strconv.FormatInt(id, 10)
}

// FilePath returns the path of a version owned by system object owner.
func FilePath(owner int64, v *repository.AssetVersion) string {
	return SystemObjectDir(owner) + v.NormalizedPath()
}

// Lookup returns the resource at p, fanning out to the repository on a
// miss. Paths are case-sensitive cache keys; "" and "." mean the root.
func (c *ResourceCache) Lookup(ctx context.Context, p string, prop Property, mode LookupMode) (*Resource, error) {
	p = cleanPath(p)

	if r, ok := c.load(p); ok {
		c.metrics.RecordLookup(string(prop), true)
		return r, nil
	}
	c.metrics.RecordLookup(string(prop), false)

	idStr, _, ok := resolver.ParsePath("", p)
	if ok {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			ok = false
		} else if err := c.fanOut(ctx, id); err != nil {
			if !isResolveMiss(err) {
				return nil, err
			}
			c.log.Debug().Err(err).Str("path", p).Msg("fan-out found nothing")
		}
	}

	if r, ok := c.load(p); ok {
		return r, nil
	}
	if mode == TolerateMissing {
		return newPlaceholder(p), nil
	}
	return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
}

// Upsert refreshes the file resource of v, owned by system object owner,
// and links it into its ancestors.
func (c *ResourceCache) Upsert(v *repository.AssetVersion, owner int64) *Resource {
	now := c.clock.Now()
	c.ensureDir(SystemObjectDir(owner), now)
	return c.putFile(owner, v, now)
}

// Len returns the number of cached resources, root included.
func (c *ResourceCache) Len() int {
	return c.resources.Size()
}

// load returns a live resource. An expired file is evicted.
func (c *ResourceCache) load(p string) (*Resource, bool) {
	r, ok := c.resources.Load(p)
	if !ok {
		return nil, false
	}
	if !r.expired(c.clock.Now(), c.fileTTL) {
		return r, true
	}

	// Evict only the entry observed, not a fresher one stored meanwhile
	c.resources.Compute(p, func(old *Resource, loaded bool) (*Resource, xsync.ComputeOp) {
		if loaded && old == r {
			return nil, xsync.DeleteOp
		}
		return old, xsync.CancelOp
	})
	return nil, false
}

// fanOut populates the cache from every latest version of system object
// id. Callers that give up on ctx leave the shared fan-out running for the
// others.
func (c *ResourceCache) fanOut(ctx context.Context, id int64) error {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		start := time.Now()
		err := c.populate(shared, id)
		c.metrics.ObserveFanOut(time.Since(start), err)
		return nil, err
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *ResourceCache) populate(ctx context.Context, id int64) error {
	target, err := c.resolver.Resolve(ctx, resolver.Request{
		Path:        SystemObjectDir(id),
		AllSiblings: true,
	})
	if err != nil {
		return err
	}

	now := c.clock.Now()
	c.ensureDir(SystemObjectDir(id), now)
	for _, v := range target.AssetVersions {
		c.putFile(id, v, now)
	}

	c.log.Debug().Int64("system_object", id).Int("versions", len(target.AssetVersions)).Msg("fan-out complete")
	return nil
}

func (c *ResourceCache) putFile(owner int64, v *repository.AssetVersion, now time.Time) *Resource {
	p := FilePath(owner, v)
	r := newFile(p, v, now)
	c.resources.Store(p, r)
	c.link(p, v.DateCreated, now)
	return r
}

// ensureDir returns the directory at p, creating it and linking it into its
// ancestors when absent.
func (c *ResourceCache) ensureDir(p string, now time.Time) *Resource {
	if r, ok := c.resources.Load(p); ok && r.IsDir() {
		return r
	}
	r, _ := c.resources.LoadOrCompute(p, func() (*Resource, bool) {
		return newDirectory(p, now), false
	})
	if p != "/" {
		c.link(p, time.Time{}, now)
	}
	return r
}

// link registers p with every ancestor up to the root and extends each
// ancestor's time span to cover modified. A file shadowing an ancestor
// stops the walk; p stays reachable only by its full path.
func (c *ResourceCache) link(p string, modified, now time.Time) {
	for child := p; child != "/"; {
		parent := path.Dir(child)
		dir, _ := c.resources.LoadOrCompute(parent, func() (*Resource, bool) {
			return newDirectory(parent, now), false
		})
		if !dir.IsDir() {
			c.log.Warn().Str("path", p).Str("file", parent).Msg("ancestor is a file, not listing path")
			return
		}
		dir.AddChild(path.Base(child))
		dir.touch(modified)
		child = parent
	}
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// isResolveMiss reports whether a fan-out failed because the system object
// or its assets could not be found, as opposed to an infrastructure error.
func isResolveMiss(err error) bool {
	return errors.Is(err, resolver.ErrNotFound) || errors.Is(err, resolver.ErrAddressing)
}
