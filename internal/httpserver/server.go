package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/braidlog/braid/internal/model"
	"github.com/gin-gonic/gin"
)

// Server provides an HTTP API over a merged session: manifest metadata,
// ascending range reads and filter control. It serves the same pager
// instance as the socket RPC surface.
type Server struct {
	addr      string
	api       model.ReadAPI
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, api model.ReadAPI) *Server {
	if addr == "" {
		addr = "127.0.0.1:8787"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		api:    api,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/manifest", s.handleManifest)
	r.GET("/api/total", s.handleTotal)
	r.GET("/api/logs", s.handleLogs)
	r.POST("/api/filter", s.handleSetFilter)
	r.DELETE("/api/filter", s.handleClearFilter)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleHealth reports liveness. A pager with no bound session is still
// healthy, so binding state rides along instead of failing the check.
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}

	info, err := s.api.Manifest()
	if err != nil {
		resp["bound"] = false
	} else {
		resp["bound"] = true
		resp["merged_lines"] = info.MergedLines
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleManifest(c *gin.Context) {
	info, err := s.api.Manifest()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleTotal(c *gin.Context) {
	total, err := s.api.Total()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total})
}

func (s *Server) handleLogs(c *gin.Context) {
	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing start parameter"})
		return
	}
	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing end parameter"})
		return
	}

	entries, view, err := s.api.ReadRangeByIdx(start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
		"total":   view.Total,
		"version": view.Version,
	})
}

func (s *Server) handleSetFilter(c *gin.Context) {
	var f model.Filter
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if err := s.api.SetFilter(&f); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.respondView(c)
}

func (s *Server) handleClearFilter(c *gin.Context) {
	if err := s.api.ClearFilter(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.respondView(c)
}

// respondView returns the post-mutation view so callers can refresh
// totals without a second round trip.
func (s *Server) respondView(c *gin.Context) {
	info, err := s.api.Manifest()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := s.api.Total()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"version":  info.Version,
		"filtered": info.Filtered,
	})
}
