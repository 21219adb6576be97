package webdav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/requestctx"
	"github.com/packrat/davgate/pkg/resolver"
	"github.com/packrat/davgate/pkg/storage"
	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/packrat/davgate/pkg/vfs"
)

// sniffLen is how much of a download is inspected when the file name does
// not determine its content type.
const sniffLen = 512

// handleDownload serves GET <download prefix>/idSystemObject-<id>[/<sub>]
// and GET <download prefix>?<identifier>=<id>.
//
// Payloads by target:
//   - one asset version: the file itself
//   - several asset versions: a zip archive of them
//   - workflow reports: the report in its own content type, or a zip when
//     there are several
//   - a job run: its output as text
//   - an informational message: the message as text
func (a *Adapter) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := vfs.RequestInfoFromContext(ctx, auditURL(r))

	target, err := a.fs.Resolve(ctx, resolver.Request{
		Root:  a.config.DownloadPrefix,
		Path:  r.URL.Path,
		Query: r.URL.Query(),
	}, info, audit.KindDownload)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	switch {
	case target.AssetVersion != nil:
		a.serveVersion(w, r, target.AssetVersion)
	case target.Message != "":
		serveText(w, r, target.Message)
	case len(target.AssetVersions) == 1:
		a.serveVersion(w, r, target.AssetVersions[0])
	case len(target.AssetVersions) > 1:
		a.serveArchive(w, r, archiveName(target), target.AssetVersions)
	case len(target.WorkflowReports) == 1:
		serveReport(w, r, target.WorkflowReports[0])
	case len(target.WorkflowReports) > 1:
		a.serveReportArchive(w, r, archiveName(target), target.WorkflowReports)
	case target.JobRun != nil:
		serveText(w, r, target.JobRun.Output)
	default:
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	}
}

func (a *Adapter) serveVersion(w http.ResponseWriter, r *http.Request, v *repository.AssetVersion) {
	etag := strconv.Quote(v.StorageHash)
	if v.StorageHash != "" && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	rc, err := a.fs.OpenVersion(r.Context(), v)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer rc.Close()

	var body io.Reader = rc
	ctype := vfs.MimeTypeByName(v.FileName)
	if ctype == vfs.DefaultMimeType {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(rc, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			a.writeError(w, r, fmt.Errorf("failed to read asset version %d: %w", v.IDAssetVersion, err))
			return
		}
		head = head[:n]
		ctype = mimetype.Detect(head).String()
		body = io.MultiReader(bytes.NewReader(head), rc)
	}

	h := w.Header()
	h.Set("Content-Type", ctype)
	h.Set("Content-Disposition", attachment(v.FileName))
	if v.StorageHash != "" {
		h.Set("ETag", etag)
	}
	if v.StorageSize > 0 {
		h.Set("Content-Length", strconv.FormatInt(v.StorageSize, 10))
	}
	if !v.DateCreated.IsZero() {
		h.Set("Last-Modified", v.DateCreated.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, body); err != nil {
		a.log.Warn().Err(err).
			Str("request_id", requestctx.RequestID(r.Context())).
			Int64("asset_version", v.IDAssetVersion).
			Msg("download interrupted")
	}
}

// serveArchive streams versions as one zip archive. Versions without
// stored content are skipped. Once the first byte is written, failures can
// only truncate the archive.
func (a *Adapter) serveArchive(w http.ResponseWriter, r *http.Request, name string, versions []*repository.AssetVersion) {
	h := w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", attachment(name))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	zw := zip.NewWriter(w)
	for _, v := range versions {
		if err := a.addVersion(r.Context(), zw, v); err != nil {
			if errors.Is(err, storage.ErrNotIngested) {
				a.log.Warn().Int64("asset_version", v.IDAssetVersion).Msg("skipping version without content")
				continue
			}
			a.log.Error().Err(err).
				Str("request_id", requestctx.RequestID(r.Context())).
				Str("archive", name).
				Msg("archive download aborted")
			return
		}
	}
	if err := zw.Close(); err != nil {
		a.log.Warn().Err(err).Str("archive", name).Msg("failed to finish archive")
	}
}

func (a *Adapter) addVersion(ctx context.Context, zw *zip.Writer, v *repository.AssetVersion) error {
	rc, err := a.fs.OpenVersion(ctx, v)
	if err != nil {
		return err
	}
	defer rc.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     strings.TrimPrefix(v.NormalizedPath(), "/"),
		Method:   zip.Deflate,
		Modified: v.DateCreated,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, rc)
	return err
}

func serveReport(w http.ResponseWriter, r *http.Request, report *repository.WorkflowReport) {
	ctype := report.MimeType
	if ctype == "" {
		ctype = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, report.Data)
	}
}

func (a *Adapter) serveReportArchive(w http.ResponseWriter, r *http.Request, name string, reports []*repository.WorkflowReport) {
	h := w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", attachment(name))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	zw := zip.NewWriter(w)
	for _, report := range reports {
		fw, err := zw.Create(fmt.Sprintf("%s-%d%s", resolver.ParamWorkflowReport, report.IDWorkflowReport, reportExtension(report.MimeType)))
		if err == nil {
			_, err = io.WriteString(fw, report.Data)
		}
		if err != nil {
			a.log.Error().Err(err).Str("archive", name).Msg("report archive aborted")
			return
		}
	}
	if err := zw.Close(); err != nil {
		a.log.Warn().Err(err).Str("archive", name).Msg("failed to finish archive")
	}
}

// reportExtension returns the canonical extension of a report content type.
func reportExtension(ctype string) string {
	if mt, _, err := mime.ParseMediaType(ctype); err == nil {
		if m := mimetype.Lookup(mt); m != nil && m.Extension() != "" {
			return m.Extension()
		}
	}
	return ".txt"
}

func serveText(w http.ResponseWriter, r *http.Request, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(text)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, text)
	}
}

func archiveName(t *resolver.Target) string {
	return fmt.Sprintf("%s-%d.zip", t.Mode.Param(), t.ID)
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
