package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/motorgrid/exportd/internal/erp"
	"github.com/motorgrid/exportd/internal/export"
	"github.com/motorgrid/exportd/internal/export/structs"
	"github.com/motorgrid/exportd/internal/jwt"
	"github.com/motorgrid/exportd/internal/logger"
	"github.com/motorgrid/exportd/internal/resp"
	"github.com/motorgrid/exportd/internal/version"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The agent serves local workstation frontends only.
		return true
	},
}

// Handler carries the HTTP handlers for the export API.
type Handler struct {
	svc         *export.Service
	downloader  *export.Downloader
	downloadDir string
	session     *Session
	tm          *jwt.TokenManager
	hub         *Hub
	logger      *logger.Logger
}

// NewHandler creates the API handler set.
func NewHandler(svc *export.Service, downloader *export.Downloader, downloadDir string, session *Session, tm *jwt.TokenManager, hub *Hub, log *logger.Logger) *Handler {
	return &Handler{
		svc:         svc,
		downloader:  downloader,
		downloadDir: downloadDir,
		session:     session,
		tm:          tm,
		hub:         hub,
		logger:      log,
	}
}

type loginRequest struct {
	Token string `json:"token" binding:"required"`
}

// Login stores the reporting backend credential and issues a local
// access token for subsequent API calls.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest("token is required"))
		return
	}

	h.session.Set(req.Token)

	access, err := h.tm.GenerateAccessToken(uuid.New().String(), map[string]any{})
	if err != nil {
		h.logger.Error(c.Request.Context(), "Failed to issue access token", "error", err)
		resp.Fail(c.Writer, resp.InternalServer("failed to issue access token"))
		return
	}

	resp.Success(c.Writer, gin.H{"access_token": access})
}

// Logout drops the reporting backend credential.
func (h *Handler) Logout(c *gin.Context) {
	h.session.Clear()
	resp.Success(c.Writer)
}

type createExportRequest struct {
	Format    string `json:"format"`
	Vendor    string `json:"vendor"`
	Category  string `json:"category"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
	ReportKey string `json:"report_key"`
}

// CreateExport submits a new export job.
func (h *Handler) CreateExport(c *gin.Context) {
	var req createExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Fail(c.Writer, resp.BadRequest("invalid request body"))
		return
	}

	switch structs.Format(req.Format) {
	case structs.FormatExcel, structs.FormatPDF:
	case "":
		req.Format = string(structs.FormatExcel)
	default:
		resp.Fail(c.Writer, resp.BadRequest("unsupported format: "+req.Format))
		return
	}

	taskID, err := h.svc.StartExport(c.Request.Context(), &erp.ExportParams{
		Format:    req.Format,
		Vendor:    req.Vendor,
		Category:  req.Category,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		ReportKey: req.ReportKey,
	})
	if err != nil {
		h.logger.Error(c.Request.Context(), "Export submission failed", "error", err)
		switch {
		case errors.Is(err, export.ErrUnexpectedResponse):
			resp.Fail(c.Writer, resp.InternalServer(err.Error()))
		default:
			resp.Fail(c.Writer, resp.ServiceUnavailable(err.Error()))
		}
		return
	}

	job, _ := h.svc.GetJob(taskID)
	resp.Success(c.Writer, job)
}

// ListExports returns all tracked jobs, newest first.
func (h *Handler) ListExports(c *gin.Context) {
	resp.Success(c.Writer, h.svc.Jobs())
}

// GetExport returns one job by task ID.
func (h *Handler) GetExport(c *gin.Context) {
	job, ok := h.svc.GetJob(c.Param("task_id"))
	if !ok {
		resp.Fail(c.Writer, resp.NotFound("unknown task"))
		return
	}
	resp.Success(c.Writer, job)
}

// StopPoller cancels status polling for a job. Calling it for a job
// without an active poller is not an error.
func (h *Handler) StopPoller(c *gin.Context) {
	h.svc.StopPolling(c.Param("task_id"))
	resp.Success(c.Writer)
}

// DownloadFile streams the finished export file to the caller.
func (h *Handler) DownloadFile(c *gin.Context) {
	job, ok := h.svc.GetJob(c.Param("task_id"))
	if !ok {
		resp.Fail(c.Writer, resp.NotFound("unknown task"))
		return
	}
	if job.Status != structs.JobStatusSuccess || job.FilePath == "" {
		resp.Fail(c.Writer, resp.Conflict("export is not finished"))
		return
	}

	dl, err := h.downloader.Fetch(c.Request.Context(), job.FilePath)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Export download failed", "task_id", job.TaskID, "error", err)
		switch {
		case errors.Is(err, export.ErrAuthenticationRequired):
			resp.Fail(c.Writer, resp.UnAuthorized("authentication required"))
		case errors.Is(err, export.ErrSessionExpired):
			resp.Fail(c.Writer, resp.UnAuthorized("session expired"))
		case errors.Is(err, export.ErrFileNotFound):
			resp.Fail(c.Writer, resp.NotFound("export file not found"))
		default:
			resp.Fail(c.Writer, resp.ServiceUnavailable("download failed"))
		}
		return
	}
	defer dl.Body.Close()

	contentType := dl.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, dl.Size, contentType, dl.Body, map[string]string{
		"Content-Disposition": `attachment; filename="` + dl.FileName + `"`,
	})
}

// SaveFile downloads the finished export into the configured download
// directory on the agent host and returns the local path.
func (h *Handler) SaveFile(c *gin.Context) {
	if h.downloadDir == "" {
		resp.Fail(c.Writer, resp.BadRequest("no download directory configured"))
		return
	}

	job, ok := h.svc.GetJob(c.Param("task_id"))
	if !ok {
		resp.Fail(c.Writer, resp.NotFound("unknown task"))
		return
	}
	if job.Status != structs.JobStatusSuccess || job.FilePath == "" {
		resp.Fail(c.Writer, resp.Conflict("export is not finished"))
		return
	}

	dest, err := h.downloader.FetchTo(c.Request.Context(), job.FilePath, h.downloadDir)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Export save failed", "task_id", job.TaskID, "error", err)
		switch {
		case errors.Is(err, export.ErrAuthenticationRequired):
			resp.Fail(c.Writer, resp.UnAuthorized("authentication required"))
		case errors.Is(err, export.ErrSessionExpired):
			resp.Fail(c.Writer, resp.UnAuthorized("session expired"))
		case errors.Is(err, export.ErrFileNotFound):
			resp.Fail(c.Writer, resp.NotFound("export file not found"))
		default:
			resp.Fail(c.Writer, resp.ServiceUnavailable("download failed"))
		}
		return
	}

	resp.Success(c.Writer, gin.H{"path": dest})
}

// NotificationPermission reports whether user-visible notifications are
// permitted on this host.
func (h *Handler) NotificationPermission(c *gin.Context) {
	resp.Success(c.Writer, gin.H{"granted": h.svc.RequestPermission(c.Request.Context())})
}

// HandleWS upgrades the connection and subscribes it to export updates.
func (h *Handler) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Failed to upgrade connection", "error", err)
		return
	}

	client := newWSClient(h.hub, conn, h.logger)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// Health is the liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	resp.Success(c.Writer, gin.H{
		"status":  "ok",
		"session": h.session.Active(),
		"clients": h.hub.ClientCount(),
	})
}

// Version reports build information.
func (h *Handler) Version(c *gin.Context) {
	resp.Success(c.Writer, version.GetVersionInfo())
}
