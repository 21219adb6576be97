package webdav

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/packrat/davgate/pkg/requestctx"
	"github.com/packrat/davgate/pkg/resolver"
	"github.com/packrat/davgate/pkg/vfs"
)

// handleUpload serves PUT <download prefix>/idSystemObject-<id>/<sub> and
// PUT <download prefix>?idAsset|idAssetVersion=<id>.
//
// The body is buffered and accepted; the commit completes after the
// response, so success is 202 Accepted.
func (a *Adapter) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := vfs.RequestInfoFromContext(ctx, auditURL(r))

	var (
		up  vfs.Upload
		err error
	)
	if _, _, ok := resolver.ParsePath(a.config.DownloadPrefix, r.URL.Path); ok {
		up, err = a.fs.OpenWriteStream(ctx, strings.TrimPrefix(r.URL.Path, a.config.DownloadPrefix), info)
	} else {
		up, err = a.fs.OpenAssetWriteStream(ctx, resolver.Request{Query: r.URL.Query()}, info)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	n, err := io.Copy(up, r.Body)
	if err != nil {
		up.Abort()
		if !errors.Is(err, vfs.ErrUploadTooLarge) {
			err = fmt.Errorf("upload body failed after %d bytes: %w", n, err)
			a.log.Warn().Err(err).Str("request_id", requestctx.RequestID(ctx)).Msg("upload discarded")
			http.Error(w, "upload interrupted", http.StatusBadRequest)
			return
		}
		a.writeError(w, r, err)
		return
	}
	if err := up.Close(); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.metrics.RecordBytes(routeUpload, "in", n)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "accepted %d bytes\n", n)
}
