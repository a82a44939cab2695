// Package server exposes moex over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dan-solli/moex/pkg/chat"
	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/moex"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// SessionCookie carries the trust session token.
	SessionCookie = "moex_session"

	adminHeader     = "X-Admin-Token"
	callerKey       = "moex.caller"
	adminKey        = "moex.admin"
	maxUploadSize   = 5 << 20 // 5MB
	shutdownTimeout = 10 * time.Second
)

// Server is the moex HTTP server
type Server struct {
	app    *moex.MoeX
	router *gin.Engine
	logger *zap.Logger
}

// New creates the router and registers every route.
func New(app *moex.MoeX, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	s := &Server{
		app:    app,
		router: router,
		logger: logger,
	}

	router.Use(gin.Recovery(), s.requestLogger(), s.cors())

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.GET("/healthz", s.handleHealth)
	router.GET("/version", s.handleVersion)
	if reg := app.Registry(); reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	admin := router.Group("/people", s.requireAdmin())
	{
		admin.POST("", s.handleCreatePerson)
		admin.POST("/:id/disable", s.handleDisablePerson)
	}

	auth := router.Group("/auth")
	{
		auth.POST("/claim", s.handleClaim)
		auth.POST("/verify", s.handleVerify)
	}

	router.GET("/me", s.handleMe)
	router.POST("/chat", s.handleChat)

	// Knowledge and humor writes reach every user.
	router.POST("/teach", s.resolveCaller(), s.requireTrusted(true), s.handleTeach)
	router.POST("/upload", s.resolveCaller(), s.requireTrusted(true), s.handleUpload)

	tasks := router.Group("/tasks", s.resolveCaller(), s.requireTrusted(false))
	{
		tasks.POST("", s.handleCreateTask)
		tasks.GET("", s.handleListTasks)
		tasks.PATCH("/:id", s.handleUpdateTask)
	}

	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// cors reflects allowed origins so the session cookie can travel with
// credentialed requests. "*" allows any origin.
func (s *Server) cors() gin.HandlerFunc {
	origins := s.app.Config().Server.CORSOrigins
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+adminHeader)
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireAdmin checks the admin token when one is configured.
func (s *Server) requireAdmin() gin.HandlerFunc {
	token := s.app.Config().Server.AdminToken
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if !s.adminPresented(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
			return
		}
		c.Next()
	}
}

// adminPresented reports whether the request carries the configured admin
// token. It is false when no token is configured.
func (s *Server) adminPresented(c *gin.Context) bool {
	token := s.app.Config().Server.AdminToken
	if token == "" {
		return false
	}
	got := c.GetHeader(adminHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// resolveCaller resolves the session once and stores the caller and the
// admin flag on the context.
func (s *Server) resolveCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := s.caller(c)
		if err != nil {
			s.fail(c, "resolve", err)
			c.Abort()
			return
		}
		c.Set(callerKey, caller)
		c.Set(adminKey, s.adminPresented(c))
		c.Next()
	}
}

// requireTrusted turns away anonymous callers without the admin token when
// guest mode is off. With shared set, anonymous callers are also turned away
// whenever an admin token is configured.
func (s *Server) requireTrusted(shared bool) gin.HandlerFunc {
	cfg := s.app.Config()
	return func(c *gin.Context) {
		if !callerFrom(c).Anonymous() || isAdmin(c) {
			c.Next()
			return
		}
		if !cfg.Auth.AllowGuests || (shared && cfg.Server.AdminToken != "") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "verify your identity first",
				"next":  chat.NextClaim,
			})
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) identity.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(identity.Caller); ok {
			return caller
		}
	}
	return identity.Caller{}
}

func isAdmin(c *gin.Context) bool {
	return c.GetBool(adminKey)
}

// sessionToken reads the session from the cookie, falling back to a bearer
// token.
func sessionToken(c *gin.Context) string {
	if v, err := c.Cookie(SessionCookie); err == nil && v != "" {
		return v
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) caller(c *gin.Context) (identity.Caller, error) {
	return s.app.Identity().Resolve(c.Request.Context(), sessionToken(c))
}
