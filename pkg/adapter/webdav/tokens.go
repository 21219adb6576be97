package webdav

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/requestctx"
	"github.com/packrat/davgate/pkg/resolver"
	"github.com/packrat/davgate/pkg/vfs"
)

// TokenResponse is the body of a successful token issuance.
type TokenResponse struct {
	Token          string `json:"token"`
	IDSystemObject int64  `json:"idSystemObject"`
}

// handleIssueToken serves POST <token path>?idSystemObject=<id>. The token
// binds the calling user to that one system object.
func (a *Adapter) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requestctx.User(ctx)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	if !a.limiter.Allow(strconv.FormatInt(user, 10)) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "too many token requests", http.StatusTooManyRequests)
		return
	}

	idStr := r.URL.Query().Get(resolver.ParamSystemObject)
	so, ok := positiveID(idStr)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	// Resolving proves the object exists and audits the issuance.
	info := vfs.RequestInfoFromContext(ctx, auditURL(r))
	req := resolver.Request{Query: url.Values{resolver.ParamSystemObject: {idStr}}}
	if _, err := a.fs.Resolve(ctx, req, info, audit.KindTokenIssued); err != nil {
		a.writeError(w, r, err)
		return
	}

	tok, err := a.tokens.Generate(user, so)
	if err != nil {
		a.log.Error().Err(err).Int64("user", user).Int64("system_object", so).Msg("token generation failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	a.metrics.RecordTokenIssued()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(TokenResponse{Token: tok, IDSystemObject: so})
}

// handleRevokeToken serves DELETE <token path>/<token>. Revoking an unknown
// token succeeds.
func (a *Adapter) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requestctx.User(ctx)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	a.tokens.Revoke(r.PathValue("token"))
	a.audit.Audit(ctx, audit.Event{
		URL:           a.config.TokenPath,
		Authenticated: true,
		Kind:          audit.KindTokenRevoked,
		UserID:        user,
		Time:          a.clock.Now(),
	})
	w.WriteHeader(http.StatusNoContent)
}
