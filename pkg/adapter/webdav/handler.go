package webdav

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/packrat/davgate/pkg/requestctx"
	"github.com/packrat/davgate/pkg/resolver"
	"github.com/packrat/davgate/pkg/storage"
	"github.com/packrat/davgate/pkg/vfs"
	"golang.org/x/net/webdav"
)

// Route labels used for metrics.
const (
	routeWebDAV   = "webdav"
	routeDownload = "download"
	routeUpload   = "upload"
	routeToken    = "token"
	routeOther    = "other"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

func (a *Adapter) routes() http.Handler {
	mux := http.NewServeMux()

	dav := a.webdav(vfs.GuardUploads(&webdav.Handler{
		Prefix:     a.config.WebDAVPrefix,
		FileSystem: vfs.WebDAV(a.fs),
		LockSystem: vfs.NopLockSystem{},
		Logger:     a.logDAV,
	}))
	mux.Handle(a.config.WebDAVPrefix, dav)
	mux.Handle(a.config.WebDAVPrefix+"/", dav)

	for _, p := range []string{a.config.DownloadPrefix, a.config.DownloadPrefix + "/"} {
		mux.HandleFunc("GET "+p, a.handleDownload)
		mux.HandleFunc("PUT "+p, a.handleUpload)
	}

	mux.HandleFunc("POST "+a.config.TokenPath, a.handleIssueToken)
	mux.HandleFunc("DELETE "+a.config.TokenPath+"/{token}", a.handleRevokeToken)

	return a.withRequestID(a.instrument(a.authenticate(mux)))
}

// webdav rejects protocol-level locking and serves everything else.
func (a *Adapter) webdav(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "LOCK" || r.Method == "UNLOCK" {
			w.Header().Set("Allow", "OPTIONS, GET, HEAD, PUT, PROPFIND")
			http.Error(w, "locking is not supported", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (a *Adapter) logDAV(r *http.Request, err error) {
	if err == nil {
		return
	}
	a.log.Debug().
		Err(err).
		Str("request_id", requestctx.RequestID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("webdav request failed")
}

// withRequestID propagates a valid inbound request id or assigns a new one.
func (a *Adapter) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = requestctx.NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(requestctx.WithRequestID(r.Context(), id)))
	})
}

// instrument records request metrics and logs each request at debug level.
func (a *Adapter) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := a.clock.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := a.routeOf(r)
		elapsed := a.clock.Now().Sub(start)
		a.metrics.RecordRequest(route, r.Method, rec.status, elapsed)
		if rec.bytes > 0 {
			a.metrics.RecordBytes(route, "out", rec.bytes)
		}

		a.log.Debug().
			Str("request_id", requestctx.RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("bytes", rec.bytes).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func (a *Adapter) routeOf(r *http.Request) string {
	p := r.URL.Path
	switch {
	case underPrefix(p, a.config.WebDAVPrefix):
		return routeWebDAV
	case underPrefix(p, a.config.DownloadPrefix):
		if r.Method == http.MethodPut {
			return routeUpload
		}
		return routeDownload
	case underPrefix(p, a.config.TokenPath):
		return routeToken
	}
	return routeOther
}

// auditURL is the request URL with any capability token removed.
func auditURL(r *http.Request) string {
	q := r.URL.Query()
	if !q.Has(TokenParam) {
		return r.URL.String()
	}
	q.Del(TokenParam)
	u := *r.URL
	u.RawQuery = q.Encode()
	return u.String()
}

func underPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// statusRecorder captures the status code and body size.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// statusOf maps gateway errors onto HTTP status codes. Resolution
// failures are uniformly 404.
func statusOf(err error) int {
	var resErr *resolver.Error
	switch {
	case errors.As(err, &resErr):
		return resErr.StatusCode()
	case errors.Is(err, vfs.ErrNotFound), errors.Is(err, storage.ErrNotIngested):
		return http.StatusNotFound
	case errors.Is(err, os.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, vfs.ErrIsDirectory), errors.Is(err, vfs.ErrNotDirectory):
		return http.StatusConflict
	case errors.Is(err, vfs.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, vfs.ErrNoAssetType):
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

// writeError answers with the status for err. Resolution details stay in
// the log; the client sees only the status text.
func (a *Adapter) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	ev := a.log.Debug()
	if code >= http.StatusInternalServerError {
		ev = a.log.Error()
	}
	ev.Err(err).
		Str("request_id", requestctx.RequestID(r.Context())).
		Str("method", r.Method).
		Str("url", auditURL(r)).
		Int("status", code).
		Msg("request failed")

	msg := http.StatusText(code)
	if code == http.StatusRequestEntityTooLarge {
		msg = err.Error()
	}
	http.Error(w, msg, code)
}
