// Package server exposes the export coordinator over HTTP and
// websocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/motorgrid/exportd/internal/config"
	"github.com/motorgrid/exportd/internal/event"
	"github.com/motorgrid/exportd/internal/export"
	"github.com/motorgrid/exportd/internal/export/structs"
	"github.com/motorgrid/exportd/internal/jwt"
	"github.com/motorgrid/exportd/internal/logger"
)

// Server is the HTTP composition root.
type Server struct {
	cfg     *config.Config
	logger  *logger.Logger
	handler *Handler
	hub     *Hub
	bus     *event.Bus
	svc     *export.Service
	http    *http.Server
}

// New assembles the router and its dependencies.
func New(cfg *config.Config, log *logger.Logger, svc *export.Service, downloader *export.Downloader, session *Session, bus *event.Bus) *Server {
	if cfg.RunMode != "" {
		gin.SetMode(cfg.RunMode)
	}

	tm := jwt.NewTokenManager(cfg.Auth.JWT.Secret)
	hub := NewHub(log)
	handler := NewHandler(svc, downloader, cfg.Export.DownloadDir, session, tm, hub, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())

	r.GET("/health", handler.Health)
	r.GET("/version", handler.Version)

	// Login issues the token the protected group requires, so the
	// session endpoints sit outside the auth middleware.
	r.POST("/v1/session", handler.Login)
	r.DELETE("/v1/session", handler.Logout)

	v1 := r.Group("/v1")
	v1.Use(AuthMiddleware(tm, cfg.Auth, log))
	{
		v1.POST("/exports", handler.CreateExport)
		v1.GET("/exports", handler.ListExports)
		v1.GET("/exports/:task_id", handler.GetExport)
		v1.DELETE("/exports/:task_id/poller", handler.StopPoller)
		v1.GET("/exports/:task_id/file", handler.DownloadFile)
		v1.POST("/exports/:task_id/save", handler.SaveFile)

		v1.GET("/notifications/permission", handler.NotificationPermission)
		v1.GET("/ws", handler.HandleWS)
	}

	return &Server{
		cfg:     cfg,
		logger:  log,
		handler: handler,
		hub:     hub,
		bus:     bus,
		svc:     svc,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start runs the hub, bridges coordinator updates onto the event bus
// and websocket, and serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.bridgeEvents(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// bridgeEvents connects the coordinator's listener fan-out to the
// domain event bus, and the bus to the websocket hub. Jobs flow one
// way: coordinator -> bus -> hub.
func (s *Server) bridgeEvents(ctx context.Context) {
	broadcast := func(_ context.Context, e *event.Event) error {
		if raw, ok := e.Payload["job"].(*structs.Job); ok {
			s.hub.BroadcastJob(raw)
		}
		return nil
	}
	for _, t := range []event.EventType{
		event.EventTypeExportRequested,
		event.EventTypeExportProgressed,
		event.EventTypeExportCompleted,
		event.EventTypeExportFailed,
	} {
		s.bus.Subscribe(t, broadcast)
	}

	s.svc.Subscribe(func(job *structs.Job) {
		if err := s.bus.Publish(ctx, &event.Event{
			Type:          eventTypeFor(job),
			AggregateID:   job.TaskID,
			AggregateName: "export",
			Payload:       map[string]any{"job": job},
		}); err != nil {
			s.logger.Error(ctx, "Failed to publish export event", "task_id", job.TaskID, "error", err)
		}
	})
}

func eventTypeFor(job *structs.Job) event.EventType {
	switch job.Status {
	case structs.JobStatusSuccess:
		return event.EventTypeExportCompleted
	case structs.JobStatusFailure:
		return event.EventTypeExportFailed
	case structs.JobStatusProgress:
		return event.EventTypeExportProgressed
	default:
		return event.EventTypeExportRequested
	}
}
