package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/requestctx"
	"github.com/packrat/davgate/pkg/resolver"
	"github.com/packrat/davgate/pkg/storage"
	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/packrat/davgate/pkg/vocabulary"
)

// RequestInfo is the request identity captured when a stream is opened.
// Upload completion runs after the request has returned and reads these
// values instead of the request context.
type RequestInfo struct {
	UserID        int64
	Authenticated bool
	RequestID     string
	URL           string
}

// RequestInfoFromContext captures the identity carried by ctx.
func RequestInfoFromContext(ctx context.Context, url string) RequestInfo {
	id, ok := requestctx.User(ctx)
	return RequestInfo{
		UserID:        id,
		Authenticated: ok,
		RequestID:     requestctx.RequestID(ctx),
		URL:           url,
	}
}

// Resolve resolves req and records an audit event of kind for the resolved
// subject. The event is recorded even when resolution fails.
func (fs *FileSystem) Resolve(ctx context.Context, req resolver.Request, info RequestInfo, kind audit.Kind) (*resolver.Target, error) {
	target, err := fs.resolver.Resolve(ctx, req)

	ev := audit.Event{
		URL:           info.URL,
		Authenticated: info.Authenticated,
		Kind:          kind,
		UserID:        info.UserID,
		Time:          fs.clock.Now(),
	}
	if target != nil {
		ev.ObjectType, ev.ObjectID = target.Subject()
	}
	fs.audit.Audit(ctx, ev)

	return target, err
}

// OpenVersion opens the stored bytes of v.
func (fs *FileSystem) OpenVersion(ctx context.Context, v *repository.AssetVersion) (io.ReadCloser, error) {
	rc, err := fs.engine.ReadAssetVersion(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset version %d: %w", v.IDAssetVersion, err)
	}
	return rc, nil
}

// OpenReadStream opens the file at p for reading.
func (fs *FileSystem) OpenReadStream(ctx context.Context, p string, info RequestInfo) (io.ReadCloser, *repository.AssetVersion, error) {
	target, err := fs.Resolve(ctx, resolver.Request{Path: cleanPath(p)}, info, audit.KindDownload)
	if err != nil {
		return nil, nil, err
	}
	if target.AssetVersion == nil {
		return nil, nil, fmt.Errorf("%s: no asset version: %w", p, ErrNotFound)
	}

	rc, err := fs.OpenVersion(ctx, target.AssetVersion)
	if err != nil {
		return nil, nil, err
	}
	return rc, target.AssetVersion, nil
}

// Upload is an open write stream. Close accepts the bytes for commit.
type Upload interface {
	io.WriteCloser

	// Abort discards the buffered bytes without committing them. A later
	// Close returns ErrUploadAborted.
	Abort()

	// Size returns the number of bytes buffered so far.
	Size() int64
}

// upload is everything a completion needs, fixed when the stream opens.
type upload struct {
	ctx      context.Context
	info     RequestInfo
	owner    *repository.SystemObject
	asset    *repository.Asset
	fileName string
	filePath string
	typeID   int64
}

// OpenWriteStream opens the file at p for writing. The returned writer
// buffers in memory. Close hands the bytes to a background completion that
// commits them as a new asset version; its failures are logged, not
// returned.
//
// Writing to an existing file versions that file's asset. Any other path
// below a system object directory creates a new asset there.
func (fs *FileSystem) OpenWriteStream(ctx context.Context, p string, info RequestInfo) (Upload, error) {
	p = cleanPath(p)

	// ========================================================================
	// Step 1: Identify an existing asset at p
	// ========================================================================

	target, resolveErr := fs.Resolve(ctx, resolver.Request{Path: p, MatchPartial: true}, info, audit.KindUpload)
	if resolveErr != nil && !errors.Is(resolveErr, resolver.ErrNotFound) {
		return nil, resolveErr
	}

	// ========================================================================
	// Step 2: Resolve the owner and place the file
	// ========================================================================

	idStr, subPath, ok := resolver.ParsePath("", p)
	if !ok {
		return nil, fmt.Errorf("%s: not below a system object: %w", p, os.ErrPermission)
	}
	if subPath == "" {
		return nil, fmt.Errorf("%s: %w", p, ErrIsDirectory)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%s: invalid system object id: %w", p, ErrNotFound)
	}

	owner, err := fs.repo.GetSystemObject(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%s: owner %d: %w", p, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to resolve owner of %s: %w", p, err)
	}

	fileName := path.Base(subPath)
	filePath := strings.Trim(path.Dir(subPath), "/")
	if filePath == "." {
		filePath = ""
	}

	var asset *repository.Asset
	if resolveErr == nil && target.Partial {
		return nil, fmt.Errorf("%s: %w", p, ErrIsDirectory)
	}
	if err := fs.checkAncestors(ctx, id, filePath); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	if resolveErr == nil && target.AssetVersion != nil {
		if asset, err = fs.repo.GetAsset(ctx, target.AssetVersion.IDAsset); err != nil {
			return nil, fmt.Errorf("failed to load asset %d: %w", target.AssetVersion.IDAsset, err)
		}
	}

	// ========================================================================
	// Step 3: Classify before anything touches storage
	// ========================================================================

	class := fs.Classify(fileName)
	typeID, ok := fs.vocab.AssetTypeID(class)
	if !ok {
		return nil, fmt.Errorf("%s (%s): %w", fileName, class, ErrNoAssetType)
	}

	return fs.newWriteStream(upload{
		ctx:      context.WithoutCancel(ctx),
		info:     info,
		owner:    owner,
		asset:    asset,
		fileName: fileName,
		filePath: filePath,
		typeID:   typeID,
	}), nil
}

// checkAncestors fails with ErrNotDirectory when a segment of dir is an
// existing file of system object id.
func (fs *FileSystem) checkAncestors(ctx context.Context, id int64, dir string) error {
	if dir == "" {
		return nil
	}
	versions, err := fs.repo.GetLatestAssetVersionsForSystemObject(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list assets of system object %d: %w", id, err)
	}
	files := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		files[strings.ToLower(v.NormalizedPath())] = struct{}{}
	}
	for ancestor := "/" + strings.ToLower(dir); ancestor != "/"; ancestor = path.Dir(ancestor) {
		if _, ok := files[ancestor]; ok {
			return fmt.Errorf("%s is a file: %w", ancestor, ErrNotDirectory)
		}
	}
	return nil
}

// OpenAssetWriteStream opens a write stream that versions the asset
// addressed by an idAsset or idAssetVersion request, at its current path.
func (fs *FileSystem) OpenAssetWriteStream(ctx context.Context, req resolver.Request, info RequestInfo) (Upload, error) {
	target, err := fs.Resolve(ctx, req, info, audit.KindUpload)
	if err != nil {
		return nil, err
	}
	if target.Mode != resolver.ModeAsset && target.Mode != resolver.ModeAssetVersion {
		return nil, fmt.Errorf("uploads address an asset, not a %s: %w", target.Mode, os.ErrPermission)
	}

	asset, err := fs.repo.GetAsset(ctx, target.AssetVersion.IDAsset)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %d: %w", target.AssetVersion.IDAsset, err)
	}
	owner, err := fs.repo.GetSystemObject(ctx, asset.IDSystemObjectOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owner of asset %d: %w", asset.IDAsset, err)
	}

	return fs.newWriteStream(upload{
		ctx:      context.WithoutCancel(ctx),
		info:     info,
		owner:    owner,
		asset:    asset,
		fileName: asset.FileName,
		filePath: asset.FilePath,
		typeID:   asset.IDAssetType,
	}), nil
}

// Classify maps a file name to its asset classification.
func (fs *FileSystem) Classify(fileName string) vocabulary.Classification {
	lower := strings.ToLower(fileName)
	if strings.HasSuffix(lower, strings.ToLower(fs.cfg.SceneSuffix)) {
		return vocabulary.ClassScene
	}
	return fs.vocab.ClassifyExtension(path.Ext(lower))
}

// writeStream buffers one upload.
type writeStream struct {
	fs  *FileSystem
	job upload

	mu      sync.Mutex
	buf     bytes.Buffer
	err     error
	closed  bool
	aborted bool
}

func (fs *FileSystem) newWriteStream(job upload) *writeStream {
	return &writeStream{fs: fs, job: job}
}

func (w *writeStream) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	if int64(w.buf.Len())+int64(len(p)) > w.fs.cfg.MaxUploadBytes {
		w.err = ErrUploadTooLarge
		w.buf.Reset()
		return 0, w.err
	}
	return w.buf.Write(p)
}

// Size returns the number of bytes buffered so far.
func (w *writeStream) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.buf.Len())
}

// Close accepts the upload and schedules its commit. An upload that
// overflowed the buffer is discarded and its error returned.
func (w *writeStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		if w.aborted {
			return ErrUploadAborted
		}
		return nil
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}

	data := w.buf.Bytes()
	w.fs.inflight.Add(1)
	go func() {
		defer w.fs.inflight.Done()
		w.fs.complete(w.job, data)
	}()
	return nil
}

// Abort discards the upload. It is a no-op once Close has run.
func (w *writeStream) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.aborted = true
	w.buf.Reset()
}

// complete commits one upload under the owner's write lock.
func (fs *FileSystem) complete(job upload, data []byte) {
	start := time.Now()
	fs.metrics.RecordIngestionStart()

	owner := job.owner.IDSystemObject
	desc := &storage.IngestDescriptor{
		Reader:        bytes.NewReader(data),
		Size:          int64(len(data)),
		FileName:      job.fileName,
		FilePath:      job.filePath,
		IDAssetType:   job.typeID,
		IDUserCreator: job.info.UserID,
		Owner:         job.owner,
		Asset:         job.asset,
		Comment:       fs.cfg.Comment,
	}

	var versions []*repository.AssetVersion
	err := fs.locks.Run(job.ctx, owner, func(ctx context.Context) error {
		var err error
		versions, err = fs.engine.IngestStreamOrFile(context.WithoutCancel(ctx), desc)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fs.cache.Upsert(v, owner)
		}
		return nil
	})
	fs.metrics.RecordIngestionEnd(int64(len(data)), time.Since(start), err)

	log := fs.log.With().
		Str("request_id", job.info.RequestID).
		Int64("user", job.info.UserID).
		Int64("system_object", owner).
		Str("file", path.Join("/", job.filePath, job.fileName)).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Logger()
	if err != nil {
		log.Error().Err(err).Msg("upload commit failed")
		return
	}
	for _, v := range versions {
		log.Info().Int64("asset_version", v.IDAssetVersion).Int("version", v.Version).Msg("upload committed")
	}
}
