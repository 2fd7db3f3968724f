package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/config"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
	"github.com/ifuryst/kiosksync/internal/service"
)

type Server struct {
	Config *config.Config
	App    *service.App
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server
}

// NewServer builds the engine from cfg and mounts the trigger API over it.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	app, err := service.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return New(cfg, app, logger), nil
}

// New mounts the trigger API over an already assembled engine.
func New(cfg *config.Config, app *service.App, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)

	srv := &Server{
		Config: cfg,
		App:    app,
		Router: gin.New(),
		Logger: logger,
	}
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		s.Logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	})
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})
	s.Router.GET("/metrics", gin.WrapH(s.App.Metrics.Handler()))

	api := s.Router.Group("/api/v1")
	{
		uploads := api.Group("/uploads")
		{
			uploads.POST("", s.handleEnqueueUpload)
			uploads.GET("", s.handleListUploads)
			uploads.GET("/stats", s.handleUploadStats)
			uploads.POST("/process", s.handleProcessUploads)
			uploads.POST("/:id/cancel", s.handleCancelUpload)
			uploads.POST("/:id/requeue", s.handleRequeueUpload)
		}

		api.POST("/sync/kiosks", s.handleSyncAllKiosks)
		api.POST("/kiosks/:id/sync", s.handleSyncKiosk)
		api.POST("/campaigns/:id/transition", s.handleCampaignTransition)
		api.GET("/errors", s.handleRecentErrors)
	}
}

func (s *Server) handleProcessUploads(c *gin.Context) {
	report, err := s.App.Queue.ProcessDue(c.Request.Context(), time.Now())
	if err != nil {
		s.fail(c, "Failed to process upload jobs", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleEnqueueUpload(c *gin.Context) {
	var req service.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.App.Queue.Enqueue(c.Request.Context(), req)
	if err != nil {
		s.fail(c, "Failed to enqueue upload job", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job_id": id})
}

func (s *Server) handleListUploads(c *gin.Context) {
	filter := repository.UploadJobFilter{
		Status: models.JobStatus(c.Query("status")),
		Limit:  100,
	}
	var err error
	if filter.KioskID, err = queryUint(c, "kiosk_id"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.MediaAssetID, err = queryUint(c, "media_asset_id"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	jobs, err := s.App.Queue.List(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, "Failed to list upload jobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) handleUploadStats(c *gin.Context) {
	stats, err := s.App.Queue.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, "Failed to get upload stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCancelUpload(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.App.Queue.Cancel(c.Request.Context(), id); err != nil {
		s.fail(c, "Failed to cancel upload job", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "status": models.JobStatusCancelled})
}

func (s *Server) handleRequeueUpload(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	newID, err := s.App.Queue.Requeue(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "Failed to requeue upload job", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job_id": newID, "requeued_from": id})
}

type syncRequest struct {
	SyncType models.SyncType `json:"sync_type"`
}

func (r *syncRequest) bind(c *gin.Context) error {
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(r); err != nil {
			return err
		}
	}
	if r.SyncType == "" {
		r.SyncType = models.SyncTypeManual
	}
	return nil
}

func (s *Server) handleSyncAllKiosks(c *gin.Context) {
	var req syncRequest
	if err := req.bind(c); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.App.Sync.SyncAllKiosks(c.Request.Context(), req.SyncType)
	if err != nil {
		s.fail(c, "Failed to sync kiosks", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSyncKiosk(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req syncRequest
	if err := req.bind(c); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.App.Sync.SyncKiosk(c.Request.Context(), id, req.SyncType)
	if err != nil {
		s.fail(c, "Failed to sync kiosk", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type transitionRequest struct {
	Status models.CampaignStatus `json:"status" binding:"required"`
}

func (s *Server) handleCampaignTransition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.App.Lifecycle.HandleCampaignTransition(c.Request.Context(), id, req.Status)
	if err != nil {
		s.fail(c, "Failed to handle campaign transition", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleRecentErrors(c *gin.Context) {
	unresolved := c.Query("unresolved") == "true"
	logs, err := s.App.Monitoring.RecentErrors(c.Request.Context(), unresolved, 100)
	if err != nil {
		s.fail(c, "Failed to list error logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": logs})
}

// fail maps engine errors onto HTTP status codes.
func (s *Server) fail(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrJobNotPending), errors.Is(err, service.ErrJobNotRequeueable):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNoActiveProvider):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.Logger.Error(msg, zap.Error(err))
	} else {
		s.Logger.Debug(msg, zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func queryUint(c *gin.Context, key string) (uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return uint(v), nil
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.App.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.App.Stats.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.App.Scheduler.Stop()
	s.App.Stats.Stop()

	var err error
	if s.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		err = s.Server.Shutdown(shutdownCtx)
	}

	if closeErr := s.App.Close(); closeErr != nil {
		s.Logger.Error("Failed to release resources", zap.Error(closeErr))
	}
	return err
}
