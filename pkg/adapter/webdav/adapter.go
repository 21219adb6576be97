// Package webdav is the HTTP front end of the gateway: a WebDAV mount of the
// virtual filesystem, a query-addressed download and upload endpoint, and
// capability token issuance.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/internal/ratelimiter"
	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/metrics"
	"github.com/packrat/davgate/pkg/token"
	"github.com/packrat/davgate/pkg/vfs"
	"github.com/rs/zerolog"
)

// Config holds the HTTP adapter configuration.
//
// Default values (applied by ApplyDefaults if zero):
//   - Port: 8080
//   - WebDAVPrefix: /webdav
//   - DownloadPrefix: /download
//   - TokenPath: /auth/token
//   - UserHeader: X-User-Id
//   - ReadHeaderTimeout: 10s
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - TokenRatePerSecond: 1, TokenRateBurst: 10
type Config struct {
	// Enabled controls whether the HTTP adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// WebDAVPrefix is the URL prefix of the WebDAV mount.
	WebDAVPrefix string `mapstructure:"webdav_prefix" yaml:"webdav_prefix"`

	// DownloadPrefix is the URL prefix of the download and upload endpoint.
	DownloadPrefix string `mapstructure:"download_prefix" yaml:"download_prefix"`

	// TokenPath is the URL of the token endpoint.
	TokenPath string `mapstructure:"token_path" yaml:"token_path"`

	// UserHeader carries the user id asserted by the fronting
	// authentication proxy.
	UserHeader string `mapstructure:"user_header" yaml:"user_header"`

	// AllowAnonymous admits requests carrying neither a user header nor a
	// valid token. They are audited as unauthenticated.
	AllowAnonymous bool `mapstructure:"allow_anonymous" yaml:"allow_anonymous"`

	// ReadHeaderTimeout bounds reading request headers. Bodies are not
	// bounded because uploads may be large.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"min=0"`

	// IdleTimeout closes idle keep-alive connections.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout bounds the wait for in-flight requests on Stop.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// TokenRatePerSecond and TokenRateBurst limit token issuance per user.
	// A negative rate disables limiting.
	TokenRatePerSecond float64 `mapstructure:"token_rate_per_second" yaml:"token_rate_per_second"`
	TokenRateBurst     int     `mapstructure:"token_rate_burst" yaml:"token_rate_burst" validate:"min=0"`
}

// ApplyDefaults fills in zero values and normalizes the URL prefixes.
func (c *Config) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.WebDAVPrefix == "" {
		c.WebDAVPrefix = "/webdav"
	}
	if c.DownloadPrefix == "" {
		c.DownloadPrefix = "/download"
	}
	if c.TokenPath == "" {
		c.TokenPath = "/auth/token"
	}
	c.WebDAVPrefix = normalizePrefix(c.WebDAVPrefix)
	c.DownloadPrefix = normalizePrefix(c.DownloadPrefix)
	c.TokenPath = normalizePrefix(c.TokenPath)
	if c.UserHeader == "" {
		c.UserHeader = "X-User-Id"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.TokenRatePerSecond == 0 {
		c.TokenRatePerSecond = 1
	}
	if c.TokenRateBurst == 0 {
		c.TokenRateBurst = 10
	}
}

// Validate checks the port range and that the URL prefixes are distinct.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	prefixes := map[string]string{
		"webdav_prefix":   c.WebDAVPrefix,
		"download_prefix": c.DownloadPrefix,
		"token_path":      c.TokenPath,
	}
	seen := make(map[string]string, len(prefixes))
	for name, p := range prefixes {
		if normalizePrefix(p) == "/" {
			return fmt.Errorf("%s cannot be the root path", name)
		}
		if other, dup := seen[p]; dup {
			return fmt.Errorf("%s and %s share the path %s", name, other, p)
		}
		seen[p] = name
	}
	return nil
}

// normalizePrefix returns p with one leading slash and no trailing slash.
func normalizePrefix(p string) string {
	return "/" + strings.Trim(p, "/")
}

// Deps are the collaborators of the adapter. FileSystem and Tokens are
// required.
type Deps struct {
	FileSystem *vfs.FileSystem
	Tokens     *token.Store

	// Authenticator identifies the caller. Defaults to a HeaderAuthenticator
	// on Config.UserHeader.
	Authenticator Authenticator

	// Audit receives token revocation events. Defaults to audit.Nop.
	Audit audit.Sink

	Metrics metrics.HTTPMetrics
	Clock   clock.Clock
}

// Adapter serves the HTTP surface.
//
// Shutdown flow:
//  1. Context cancelled or Stop called
//  2. Listener closed, in-flight requests drain up to ShutdownTimeout
//  3. Upload completions still running are drained by the server's
//     shutdown hook (vfs.FileSystem.Wait), not here
//
// Thread safety:
// All methods are safe for concurrent use.
type Adapter struct {
	config  Config
	fs      *vfs.FileSystem
	tokens  *token.Store
	limiter *ratelimiter.Limiter
	auth    Authenticator
	audit   audit.Sink
	metrics metrics.HTTPMetrics
	clock   clock.Clock
	log     zerolog.Logger

	handler      http.Handler
	server       *http.Server
	shutdownOnce sync.Once
}

// New creates a stopped adapter.
//
// Returns an error if the configuration is invalid or a required
// dependency is missing.
func New(config Config, deps Deps) (*Adapter, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid HTTP adapter config: %w", err)
	}
	if deps.FileSystem == nil {
		return nil, errors.New("HTTP adapter requires a filesystem")
	}
	if deps.Tokens == nil {
		return nil, errors.New("HTTP adapter requires a token store")
	}
	if deps.Authenticator == nil {
		deps.Authenticator = HeaderAuthenticator{Header: config.UserHeader}
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopHTTPMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}

	a := &Adapter{
		config:  config,
		fs:      deps.FileSystem,
		tokens:  deps.Tokens,
		limiter: ratelimiter.New(config.TokenRatePerSecond, config.TokenRateBurst, ratelimiter.WithClock(deps.Clock)),
		auth:    deps.Authenticator,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		log:     logger.With("http"),
	}
	a.handler = a.routes()
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return a, nil
}

// Handler returns the root handler, for embedding and tests.
func (a *Adapter) Handler() http.Handler {
	return a.handler
}

// Serve listens on the configured port and blocks until ctx is cancelled
// or the listener fails.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails to start or fails while serving
func (a *Adapter) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", a.config.Port, err)
	}

	logger.Info("HTTP server listening on port %d (webdav=%s download=%s tokens=%s)",
		a.config.Port, a.config.WebDAVPrefix, a.config.DownloadPrefix, a.config.TokenPath)

	errChan := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		logger.Info("HTTP shutdown signal received: %v", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		return a.Stop(shutdownCtx)
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop stops accepting connections and waits for in-flight requests until
// ctx expires. Safe to call more than once.
func (a *Adapter) Stop(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		if shutdownErr := a.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("HTTP server shutdown error: %w", shutdownErr)
			logger.Error("HTTP server shutdown error: %v", shutdownErr)
			return
		}
		logger.Info("HTTP server stopped")
	})
	return err
}

// Protocol returns "HTTP".
func (a *Adapter) Protocol() string {
	return "HTTP"
}

// Port returns the configured TCP port.
func (a *Adapter) Port() int {
	return a.config.Port
}
