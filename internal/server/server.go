// Package server exposes the tutor over HTTP: POST /api/chat for single
// turns, a status probe, a reset endpoint and a websocket that streams
// replies as they are generated.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/secretkeeper/internal/config"
	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

const (
	headerConversation  = domain.ConversationHeader
	defaultConversation = domain.DefaultConversationID
)

// Tutor is the chat backend served by the endpoint.
type Tutor interface {
	Reply(ctx context.Context, conversationID, message string) (string, error)
	Stream(ctx context.Context, conversationID, message string, onDelta func(string)) (string, error)
	Clear(ctx context.Context, conversationID string) error
	Stats(ctx context.Context, conversationID string) (domain.ConversationStats, error)
	Configured() bool
	ModelName() string
}

// Option configures the Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS and websocket origin allow-list.
// "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithRequestTimeout bounds one model call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithNow overrides the reply timestamp source.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server is the HTTP chat endpoint.
type Server struct {
	tutor    Tutor
	log      *logger.Logger
	origins  []string
	timeout  time.Duration
	now      func() time.Time
	upgrader websocket.Upgrader
	router   *gin.Engine
}

// New builds the router. Call Handler or Run to serve it.
func New(tutor Tutor, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		tutor:   tutor,
		log:     log.With("server"),
		origins: []string{"*"},
		timeout: 30 * time.Second,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.origins = s.usableOrigins()
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())

	router.Use(cors.New(s.corsConfig()))
	router.Use(requestLogger(s.log))

	api := router.Group("/api")
	{
		api.POST("/chat", s.postChat)
		api.POST("/chat/reset", s.postReset)
		api.GET("/chat/ws", s.chatSocket)
		api.GET("/status", s.getStatus)
	}

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, domain.ChatResponse{Success: false, Error: "Method not allowed"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, domain.ChatResponse{Success: false, Error: "Not found"})
	})
	return router
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", headerConversation},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if s.allowAll() {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOriginFunc = s.allowed
	}
	return cfg
}

// usableOrigins drops entries cors would reject.
func (s *Server) usableOrigins() []string {
	out := make([]string, 0, len(s.origins))
	for _, o := range s.origins {
		if !config.ValidOrigin(o) {
			s.log.Warn("ignoring allowed origin %q: want * or an http(s) origin", o)
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *Server) allowAll() bool {
	for _, o := range s.origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowAll() || s.allowed(origin)
}

func (s *Server) allowed(origin string) bool {
	for _, o := range s.origins {
		if o == origin {
			return true
		}
	}
	return false
}
