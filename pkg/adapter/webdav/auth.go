package webdav

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/packrat/davgate/pkg/requestctx"
	"github.com/packrat/davgate/pkg/resolver"
)

// TokenParam is the query parameter that may carry a capability token.
const TokenParam = "token"

// Authenticator identifies the user behind a request.
type Authenticator interface {
	// Authenticate returns the user id and true when r carries an
	// identity. It does not consult capability tokens.
	Authenticate(r *http.Request) (int64, bool)
}

// HeaderAuthenticator trusts a user id header set by a fronting
// authentication proxy.
type HeaderAuthenticator struct {
	Header string
}

// Authenticate implements Authenticator.
func (h HeaderAuthenticator) Authenticate(r *http.Request) (int64, bool) {
	v := strings.TrimSpace(r.Header.Get(h.Header))
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// authenticate attaches the caller's user id to the request context.
//
// A proxy-asserted identity wins. Otherwise a capability token, taken from
// an Authorization bearer header or the token query parameter, is validated
// against the system object the request addresses; a token on a request that
// addresses no system object never validates. Requests with neither are
// rejected unless anonymous access is enabled.
func (a *Adapter) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if id, ok := a.auth.Authenticate(r); ok {
			next.ServeHTTP(w, r.WithContext(requestctx.WithUser(ctx, id)))
			return
		}

		if tok := bearerToken(r); tok != "" {
			if so, ok := a.subjectOf(r); ok {
				if id, ok := a.tokens.Validate(tok, so); ok {
					next.ServeHTTP(w, r.WithContext(requestctx.WithUser(ctx, id)))
					return
				}
			}
			a.log.Debug().Str("request_id", requestctx.RequestID(ctx)).Str("path", r.URL.Path).Msg("token rejected")
			unauthorized(w, "invalid or expired token")
			return
		}

		if !a.config.AllowAnonymous {
			unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// subjectOf returns the system object id addressed by r, from either the
// path form under a known prefix or the idSystemObject query parameter.
func (a *Adapter) subjectOf(r *http.Request) (int64, bool) {
	for _, root := range []string{a.config.WebDAVPrefix, a.config.DownloadPrefix} {
		if idStr, _, ok := resolver.ParsePath(root, r.URL.Path); ok {
			return positiveID(idStr)
		}
	}
	if v := r.URL.Query().Get(resolver.ParamSystemObject); v != "" {
		return positiveID(v)
	}
	return 0, false
}

func positiveID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get(TokenParam)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="davgate"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
