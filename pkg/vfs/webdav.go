package vfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/packrat/davgate/pkg/store/repository"
	"golang.org/x/net/webdav"
)

// WebDAV adapts a FileSystem to golang.org/x/net/webdav. The namespace is
// read/write for files only: Mkdir, RemoveAll and Rename are refused.
func WebDAV(fsys *FileSystem) webdav.FileSystem {
	return &davFS{fs: fsys}
}

type davFS struct {
	fs *FileSystem
}

func (d *davFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrPermission}
}

func (d *davFS) RemoveAll(ctx context.Context, name string) error {
	return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
}

func (d *davFS) Rename(ctx context.Context, oldName, newName string) error {
	return &os.LinkError{Op: "rename", Old: oldName, New: newName, Err: os.ErrPermission}
}

func (d *davFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	r, err := d.fs.Stat(ctx, name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return d.info(r), nil
}

func (d *davFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		w, err := d.fs.OpenWriteStream(ctx, name, RequestInfoFromContext(ctx, name))
		if err != nil {
			return nil, pathError("open", name, err)
		}
		guard, _ := ctx.Value(bodyGuardKey{}).(*bodyGuard)
		return &davUpload{w: w, guard: guard, name: path.Base(cleanPath(name)), started: d.fs.clock.Now()}, nil
	}

	r, err := d.fs.Stat(ctx, name)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	if r.IsDir() {
		return &davDir{d: d, ctx: ctx, r: r}, nil
	}
	return &davFile{d: d, ctx: ctx, r: r, name: name}, nil
}

func (d *davFS) info(r *Resource) *fileInfo {
	return &fileInfo{fs: d.fs, r: r}
}

// pathError maps filesystem errors onto the os errors webdav tests with
// os.IsNotExist and os.IsPermission.
func pathError(op, name string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		err = os.ErrNotExist
	case errors.Is(err, ErrNoAssetType), errors.Is(err, ErrIsDirectory):
		err = os.ErrPermission
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

// fileInfo implements os.FileInfo plus webdav.ETager and webdav.ContentTyper
// so that PROPFIND never has to open file contents.
type fileInfo struct {
	fs *FileSystem
	r  *Resource
}

func (fi *fileInfo) Name() string {
	if fi.r.Path() == "/" {
		return "/"
	}
	return path.Base(fi.r.Path())
}

func (fi *fileInfo) Size() int64 { return fi.r.Size() }

func (fi *fileInfo) Mode() fs.FileMode {
	if fi.r.IsDir() {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

func (fi *fileInfo) ModTime() time.Time { return fi.r.Modified() }
func (fi *fileInfo) IsDir() bool        { return fi.r.IsDir() }
func (fi *fileInfo) Sys() any           { return fi.r }

func (fi *fileInfo) ETag(ctx context.Context) (string, error) {
	if fi.r.IsDir() || fi.r.ETag() == "" {
		return "", webdav.ErrNotImplemented
	}
	return `"` + fi.r.ETag() + `"`, nil
}

func (fi *fileInfo) ContentType(ctx context.Context) (string, error) {
	if fi.r.IsDir() {
		return "", webdav.ErrNotImplemented
	}
	return MimeTypeByName(fi.Name()), nil
}

// davDir lists a directory resource.
type davDir struct {
	d   *davFS
	ctx context.Context
	r   *Resource

	pos int
}

func (f *davDir) Close() error                                 { return nil }
func (f *davDir) Read(p []byte) (int, error)                   { return 0, pathError("read", f.r.Path(), ErrIsDirectory) }
func (f *davDir) Write(p []byte) (int, error)                  { return 0, pathError("write", f.r.Path(), ErrIsDirectory) }
func (f *davDir) Seek(offset int64, whence int) (int64, error) { return 0, nil }
func (f *davDir) Stat() (os.FileInfo, error)                   { return f.d.info(f.r), nil }

// Readdir stats each child. Children whose metadata can no longer be
// produced are skipped.
func (f *davDir) Readdir(count int) ([]os.FileInfo, error) {
	names := f.r.Children()
	if f.pos >= len(names) {
		if count > 0 {
			return nil, io.EOF
		}
		return nil, nil
	}
	names = names[f.pos:]
	if count > 0 && count < len(names) {
		names = names[:count]
	}
	f.pos += len(names)

	infos := make([]os.FileInfo, 0, len(names))
	for _, name := range names {
		child, err := f.d.fs.Stat(f.ctx, path.Join(f.r.Path(), name))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return infos, err
		}
		infos = append(infos, f.d.info(child))
	}
	return infos, nil
}

// davFile reads a file resource. The content stream is opened on the first
// Read, so opening a file for its properties costs no storage access.
type davFile struct {
	d    *davFS
	ctx  context.Context
	r    *Resource
	name string

	mu      sync.Mutex
	rc      io.ReadCloser
	version *repository.AssetVersion
	pos     int64
	offset  int64
}

func (f *davFile) Stat() (os.FileInfo, error) { return f.d.info(f.r), nil }

func (f *davFile) Readdir(count int) ([]os.FileInfo, error) {
	return nil, pathError("readdir", f.name, ErrNotDirectory)
}

func (f *davFile) Write(p []byte) (int, error) {
	return 0, pathError("write", f.name, os.ErrPermission)
}

func (f *davFile) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.sync(); err != nil {
		return 0, err
	}
	n, err := f.rc.Read(p)
	f.pos += int64(n)
	f.offset = f.pos
	return n, err
}

// Seek records the target offset. The stream is forward-only, so seeking
// backwards reopens it on the next Read.
func (f *davFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.offset + offset
	case io.SeekEnd:
		abs = f.r.Size() + offset
	default:
		return 0, pathError("seek", f.name, os.ErrInvalid)
	}
	if abs < 0 {
		return 0, pathError("seek", f.name, os.ErrInvalid)
	}
	f.offset = abs
	return abs, nil
}

// sync positions the stream at f.offset.
func (f *davFile) sync() error {
	if f.rc != nil && f.offset < f.pos {
		_ = f.rc.Close()
		f.rc = nil
	}
	if f.rc == nil {
		if err := f.open(); err != nil {
			return pathError("read", f.name, err)
		}
		f.pos = 0
	}
	if skip := f.offset - f.pos; skip > 0 {
		n, err := io.CopyN(io.Discard, f.rc, skip)
		f.pos += n
		if err != nil {
			return err
		}
	}
	return nil
}

// open starts a stream. Only the first open of a handle is resolved and
// audited; reopens after a backward seek read the same version again.
func (f *davFile) open() error {
	if f.version != nil {
		rc, err := f.d.fs.OpenVersion(f.ctx, f.version)
		if err != nil {
			return err
		}
		f.rc = rc
		return nil
	}

	rc, v, err := f.d.fs.OpenReadStream(f.ctx, f.name, RequestInfoFromContext(f.ctx, f.name))
	if err != nil {
		return err
	}
	f.rc, f.version = rc, v
	return nil
}

func (f *davFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rc == nil {
		return nil
	}
	err := f.rc.Close()
	f.rc = nil
	return err
}

// davUpload is a write-only handle over a buffering write stream.
type davUpload struct {
	w       Upload
	guard   *bodyGuard
	name    string
	started time.Time
}

func (u *davUpload) Write(p []byte) (int, error) { return u.w.Write(p) }

// Close commits the upload unless the request body failed, in which case
// the partial bytes are discarded.
func (u *davUpload) Close() error {
	if u.guard != nil && u.guard.failed.Load() {
		u.w.Abort()
	}
	if err := u.w.Close(); err != nil {
		return pathError("close", u.name, err)
	}
	return nil
}

func (u *davUpload) Read(p []byte) (int, error) {
	return 0, pathError("read", u.name, os.ErrPermission)
}

func (u *davUpload) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && (whence == io.SeekStart || whence == io.SeekCurrent) {
		return 0, nil
	}
	return 0, pathError("seek", u.name, os.ErrInvalid)
}

func (u *davUpload) Readdir(count int) ([]os.FileInfo, error) {
	return nil, pathError("readdir", u.name, ErrNotDirectory)
}

// Stat describes the bytes buffered so far. The stored version does not
// exist until the upload is committed.
func (u *davUpload) Stat() (os.FileInfo, error) {
	return &uploadInfo{name: u.name, size: u.w.Size(), modTime: u.started}, nil
}

type uploadInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (i *uploadInfo) Name() string       { return i.name }
func (i *uploadInfo) Size() int64        { return i.size }
func (i *uploadInfo) Mode() fs.FileMode  { return 0o644 }
func (i *uploadInfo) ModTime() time.Time { return i.modTime }
func (i *uploadInfo) IsDir() bool        { return false }
func (i *uploadInfo) Sys() any           { return nil }

type bodyGuardKey struct{}

// bodyGuard notes whether reading the request body failed before EOF.
type bodyGuard struct {
	rc     io.ReadCloser
	failed atomic.Bool
}

func (g *bodyGuard) Read(p []byte) (int, error) {
	n, err := g.rc.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		g.failed.Store(true)
	}
	return n, err
}

func (g *bodyGuard) Close() error { return g.rc.Close() }

// GuardUploads wraps a WebDAV handler so that a PUT whose body breaks off
// mid-transfer is discarded. The webdav handler closes the file it copied
// into even when the copy failed, which would otherwise commit the
// truncated bytes.
func GuardUploads(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.Body == nil {
			h.ServeHTTP(w, r)
			return
		}
		g := &bodyGuard{rc: r.Body}
		r = r.WithContext(context.WithValue(r.Context(), bodyGuardKey{}, g))
		r.Body = g
		h.ServeHTTP(w, r)
	})
}

// NopLockSystem grants every lock request without tracking anything.
// Protocol LOCK and UNLOCK are rejected before reaching the handler; the
// webdav handler still creates and confirms implicit locks around writes.
type NopLockSystem struct{}

func (NopLockSystem) Confirm(now time.Time, name0, name1 string, conditions ...webdav.Condition) (func(), error) {
	return func() {}, nil
}

func (NopLockSystem) Create(now time.Time, details webdav.LockDetails) (string, error) {
	return "", nil
}

func (NopLockSystem) Refresh(now time.Time, token string, duration time.Duration) (webdav.LockDetails, error) {
	return webdav.LockDetails{}, webdav.ErrNoSuchLock
}

func (NopLockSystem) Unlock(now time.Time, token string) error {
	return nil
}

var (
	_ webdav.FileSystem   = (*davFS)(nil)
	_ webdav.LockSystem   = NopLockSystem{}
	_ webdav.ETager       = (*fileInfo)(nil)
	_ webdav.ContentTyper = (*fileInfo)(nil)
)
