// Package api is the thin gin HTTP adapter over the query pipeline, per
// spec §6's "HTTP surface": GET /health and POST /query.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smilemakc/chessmate/internal/chesserr"
	"github.com/smilemakc/chessmate/internal/query"
)

// Server owns the gin engine and its dependencies.
type Server struct {
	router   *gin.Engine
	pipeline *query.Pipeline
	log      zerolog.Logger
}

// New builds a Server with routes registered.
func New(pipeline *query.Pipeline, log zerolog.Logger, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{pipeline: pipeline, log: log}
	s.router = gin.New()
	s.router.Use(recovery(log), requestLogger(log))
	s.setupRoutes()
	return s
}

// Handler returns the underlying http.Handler for serving or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/query", s.handleQuery)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	resp, err := s.pipeline.Run(c.Request.Context(), req.Question)
	if err != nil {
		status := http.StatusInternalServerError
		if chesserr.Is(err, chesserr.Unavailable) {
			status = http.StatusServiceUnavailable
		} else if chesserr.Is(err, chesserr.BadInput) {
			status = http.StatusBadRequest
		}
		s.log.Error().Err(err).Str("request_id", requestIDFrom(c)).Msg("query pipeline failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{
		"plan":     resp.Plan,
		"results":  resp.Results,
		"warnings": resp.Warnings,
	}
	if resp.Agent != nil {
		body["agent"] = resp.Agent
	}
	c.JSON(http.StatusOK, body)
}
