// Package provision serves the credential form while the device runs its own
// access point.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/wlanboot/pkg/metrics"
	"github.com/haasonsaas/wlanboot/pkg/secrets"
	"github.com/haasonsaas/wlanboot/pkg/sysinfo"
	"github.com/haasonsaas/wlanboot/pkg/wlan"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/haasonsaas/wlanboot/pkg/provision"

const (
	// MaxSSIDLength is the 802.11 limit in bytes.
	MaxSSIDLength = 32
	// ShutdownReply is the body of GET /reset.
	ShutdownReply = "SERVER SHUTDOWN"

	DefaultAddr = ":80"
	DefaultRoot = "/usr/share/wlanboot/www"
)

// SystemInfo describes the device for GET /system.
type SystemInfo interface {
	Collect(ctx context.Context) *sysinfo.Descriptor
}

// Server is the provisioning HTTP server. One Serve runs at a time.
type Server struct {
	store    wlan.SecretStore
	system   SystemInfo
	addr     string
	root     string
	limit    int
	window   time.Duration
	limiter  *RateLimiter
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   zerolog.Logger
	engine   *gin.Engine
	drainFor time.Duration

	mu       sync.Mutex
	srv      *http.Server
	stop     chan struct{}
	listener string
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithRoot sets the directory holding index.html and assets/.
func WithRoot(dir string) Option {
	return func(s *Server) { s.root = dir }
}

// WithRateLimit allows limit credential submissions per client per window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) {
		s.limit = limit
		s.window = window
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp.Tracer(tracerName) }
}

func NewServer(store wlan.SecretStore, system SystemInfo, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		store:    store,
		system:   system,
		addr:     DefaultAddr,
		root:     DefaultRoot,
		limit:    10,
		window:   time.Minute,
		limiter:  NewRateLimiter(),
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With().Str("component", "provision").Logger(),
		drainFor: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), withRequestContext(s.logger, s.tracer))
	r.GET("/", s.index)
	r.GET("/system", s.systemInfo)
	r.GET("/assets/*path", s.asset)
	r.POST("/connection", rateLimited(s.limiter, s.limit, s.window, s.logger), s.connection)
	r.GET("/reset", s.reset)
	s.engine = r
	return s
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr is the address of the running listener, or "" when not serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

// Serve listens until the operator requests GET /reset, Shutdown is called
// or ctx is done. The first two return nil.
func (s *Server) Serve(ctx context.Context, w wlan.WLAN) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := make(chan struct{}, 1)

	s.mu.Lock()
	s.srv, s.stop, s.listener = srv, stop, ln.Addr().String()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.srv, s.stop, s.listener = nil, nil, ""
		s.mu.Unlock()
	}()

	s.hint(w)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-stop:
		s.logger.Info().Msg("Provisioning ended by operator")
		s.drain(srv)
		<-errc
		return nil
	case <-ctx.Done():
		s.drain(srv)
		<-errc
		return ctx.Err()
	}
}

// Shutdown gracefully stops a running Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) drain(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), s.drainFor)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Provisioning server drain incomplete")
		_ = srv.Close()
	}
}

func (s *Server) hint(w wlan.WLAN) {
	ssid, err := s.store.Get(secrets.APSSID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Access point name unavailable")
	}
	ip := "192.168.4.1"
	if w != nil {
		if cfg := w.IfConfig(); cfg.IP != "" {
			ip = cfg.IP
		}
	}
	s.logger.Info().Str("ap_ssid", ssid).Str("ip", ip).Str("listen", s.Addr()).
		Msgf("Connect to %s, browse to http://%s", ssid, ip)
}

func (s *Server) index(c *gin.Context) {
	c.File(filepath.Join(s.root, "index.html"))
}

func (s *Server) systemInfo(c *gin.Context) {
	if s.system == nil {
		respondError(c, http.StatusServiceUnavailable, "system information unavailable", s.logger)
		return
	}
	c.JSON(http.StatusOK, s.system.Collect(c.Request.Context()))
}

// asset serves <root>/assets/<path>.gz pre-compressed.
func (s *Server) asset(c *gin.Context) {
	name := c.Param("path")
	if strings.Contains(name, "..") || strings.Contains(name, "\\") {
		respondError(c, http.StatusBadRequest, "invalid asset path", s.logger)
		return
	}
	name = path.Clean("/" + name)
	f, err := os.Open(filepath.Join(s.root, "assets", filepath.FromSlash(name)+".gz"))
	if err != nil {
		respondError(c, http.StatusNotFound, "asset not found", s.logger)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		respondError(c, http.StatusNotFound, "asset not found", s.logger)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Encoding", "gzip")
	h.Set("Cache-Control", "max-age=86400")
	h.Set("Vary", "Accept-Encoding")
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
}

type connectionReply struct {
	Request bool `json:"request"`
	Valid   bool `json:"valid"`
}

func (s *Server) connection(c *gin.Context) {
	logger := requestLogger(c, s.logger)
	ssid := c.PostForm("input-ssid")
	passwd := c.PostForm("input-password")

	if !ValidSSID(ssid) {
		s.metrics.ObserveCredentialUpdate(false)
		logger.Warn().Int("ssid_bytes", len(ssid)).Msg("Rejected network credentials")
		c.JSON(http.StatusBadRequest, connectionReply{Request: true, Valid: false})
		return
	}

	// The SSID goes last: a stored SSID is what makes the next acquisition
	// try station mode.
	if _, err := s.store.Set(secrets.WLANPassword, passwd); err != nil {
		respondError(c, http.StatusInternalServerError, "store credentials: "+err.Error(), s.logger)
		return
	}
	if _, err := s.store.Set(secrets.WLANSSID, ssid); err != nil {
		respondError(c, http.StatusInternalServerError, "store credentials: "+err.Error(), s.logger)
		return
	}

	s.metrics.ObserveCredentialUpdate(true)
	logger.Info().Str("ssid", ssid).Msg("Stored network credentials")
	c.JSON(http.StatusResetContent, connectionReply{Request: true, Valid: true})
}

func (s *Server) reset(c *gin.Context) {
	c.String(http.StatusOK, ShutdownReply)
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop == nil {
		return
	}
	select {
	case stop <- struct{}{}:
	default:
	}
}

// ValidSSID reports whether ssid is non-blank and fits in 32 bytes.
func ValidSSID(ssid string) bool {
	return strings.TrimSpace(ssid) != "" && len(ssid) <= MaxSSIDLength
}
