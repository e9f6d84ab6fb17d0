// Package server is the HTTP surface of the gateway: it accepts analysis
// requests, relays the upstream stream to the caller while assembling it,
// and re-serves stored reports.
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/insightlab/reportstream/internal/assembly"
	"github.com/insightlab/reportstream/internal/chart"
	"github.com/insightlab/reportstream/internal/client"
	"github.com/insightlab/reportstream/internal/config"
	"github.com/insightlab/reportstream/internal/logger"
	"github.com/insightlab/reportstream/internal/metrics"
	"github.com/insightlab/reportstream/internal/monitor"
	"github.com/insightlab/reportstream/internal/render"
	"github.com/insightlab/reportstream/internal/store"
)

// defaultSessionIdleTTL bounds how long an untouched session stays in the
// registry. Sweeps run opportunistically on session lookup.
const defaultSessionIdleTTL = 2 * time.Hour

// Server wires the gateway's handlers to their collaborators.
type Server struct {
	cfg       *config.Config
	log       *logger.Logger
	client    *client.Client
	store     store.Store
	hub       *monitor.Hub
	renderer  *render.Renderer
	finalizer *assembly.Finalizer

	mu         sync.Mutex
	sessions   map[string]*sessionEntry
	sessionTTL time.Duration
}

// sessionEntry tracks when a session was last touched so idle ones can be
// swept.
type sessionEntry struct {
	sess     *assembly.Session
	lastSeen time.Time
}

// New builds a server. The chart tuning from config feeds the finalizer's
// resolver.
func New(cfg *config.Config, upstream *client.Client, st store.Store, hub *monitor.Hub, log *logger.Logger) *Server {
	if log == nil {
		log = &logger.Logger{Logger: slog.Default()}
	}
	tuning := chart.DefaultTuning()
	if cfg.ChartTuning != nil {
		tuning = chart.Tuning(*cfg.ChartTuning)
	}
	resolver := chart.NewResolver(tuning)
	return &Server{
		cfg:        cfg,
		log:        log,
		client:     upstream,
		store:      st,
		hub:        hub,
		renderer:   render.New(),
		finalizer:  assembly.NewFinalizer(resolver, log.Logger),
		sessions:   make(map[string]*sessionEntry),
		sessionTTL: defaultSessionIdleTTL,
	}
}

// Router assembles the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(s.cfg.CORSAllowedOrigins))
	router.Use(requestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "instance_id": logger.GetInstanceID()})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		api.POST("/chat/data", s.handleChatData)
		api.POST("/chat/clarification", s.handleClarification)
		api.GET("/chat/monitor/:session_id", s.handleMonitor)

		api.GET("/reports", s.handleListReports)
		api.GET("/reports/:report_id", s.handleGetReport)
		api.GET("/reports/:report_id/html", s.handleGetReportHTML)
		api.DELETE("/reports/:report_id", s.handleDeleteReport)
	}
	return router
}

// session returns the session for the id, creating one for an empty or
// unknown id. The returned session id is authoritative. Each lookup also
// sweeps sessions idle past the TTL so the registry cannot grow unbounded.
func (s *Server) session(id string) *assembly.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for staleID, entry := range s.sessions {
		if now.Sub(entry.lastSeen) > s.sessionTTL {
			delete(s.sessions, staleID)
		}
	}

	if id != "" {
		if entry, ok := s.sessions[id]; ok {
			entry.lastSeen = now
			return entry.sess
		}
	}
	sess := assembly.NewSession()
	s.sessions[sess.ID] = &sessionEntry{sess: sess, lastSeen: now}
	return sess
}

// requestIDMiddleware stamps every request with an id for log correlation,
// honoring one supplied by the caller.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	origins := []string{"*"}
	if allowedOrigins != "" && allowedOrigins != "*" {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}
	handler := cors.New(opts)
	return func(c *gin.Context) {
		handler.HandlerFunc(c.Writer, c.Request)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
