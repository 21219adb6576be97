package vfs

import (
	"slices"
	"sync"
	"time"

	"github.com/packrat/davgate/pkg/store/repository"
)

// Kind is the type of a Resource.
type Kind int

const (
	// KindUnknown marks a placeholder for a path with no resource
	KindUnknown Kind = iota
	KindFile
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Resource is the synthesized stat metadata of one path.
//
// Files are built from an asset version and expire after the cache's file
// TTL. Directories are built from the paths of their descendants, never
// expire, and only grow: children are appended in discovery order and a
// name is never listed twice.
//
// Thread Safety:
// All accessors are safe for concurrent use. Each resource guards its own
// attributes and children.
type Resource struct {
	mu sync.RWMutex

	path     string
	kind     Kind
	size     int64
	etag     string
	created  time.Time
	modified time.Time
	cachedAt time.Time

	// version is the asset version a file was synthesized from
	version *repository.AssetVersion

	children []string
	childSet map[string]struct{}
}

func newFile(p string, v *repository.AssetVersion, now time.Time) *Resource {
	return &Resource{
		path:     p,
		kind:     KindFile,
		size:     v.StorageSize,
		etag:     v.StorageHash,
		created:  v.DateCreated,
		modified: v.DateCreated,
		cachedAt: now,
		version:  v,
	}
}

func newDirectory(p string, t time.Time) *Resource {
	return &Resource{
		path:     p,
		kind:     KindDirectory,
		created:  t,
		modified: t,
		cachedAt: t,
		childSet: make(map[string]struct{}),
	}
}

func newPlaceholder(p string) *Resource {
	return &Resource{path: p, kind: KindUnknown}
}

// Path returns the resource path, e.g. "/idSystemObject-7/models/a.obj".
func (r *Resource) Path() string { return r.path }

// Kind never changes after construction.
func (r *Resource) Kind() Kind { return r.kind }

// IsDir reports whether r is a directory.
func (r *Resource) IsDir() bool { return r.kind == KindDirectory }

// Exists is false only for placeholders.
func (r *Resource) Exists() bool { return r.kind != KindUnknown }

func (r *Resource) Size() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// ETag returns the content hash of a file, unquoted. Directories have none.
func (r *Resource) ETag() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.etag
}

func (r *Resource) Created() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.created
}

func (r *Resource) Modified() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modified
}

// Version returns the asset version behind a file, nil otherwise.
func (r *Resource) Version() *repository.AssetVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Children returns a copy of a directory's child names in discovery order.
func (r *Resource) Children() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.children)
}

// AddChild registers name under a directory. It returns false when the name
// is already present.
func (r *Resource) AddChild(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.childSet == nil {
		r.childSet = make(map[string]struct{})
	}
	if _, ok := r.childSet[name]; ok {
		return false
	}
	r.childSet[name] = struct{}{}
	r.children = append(r.children, name)
	return true
}

// touch extends a directory's time span to cover t.
func (r *Resource) touch(t time.Time) {
	if t.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.created.IsZero() || t.Before(r.created) {
		r.created = t
	}
	if t.After(r.modified) {
		r.modified = t
	}
}

// expired reports whether a file was cached ttl or longer before now.
func (r *Resource) expired(now time.Time, ttl time.Duration) bool {
	if r.kind != KindFile {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return now.Sub(r.cachedAt) >= ttl
}
