package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/motorgrid/exportd/internal/config"
	"github.com/motorgrid/exportd/internal/erp"
	"github.com/motorgrid/exportd/internal/export"
	"github.com/motorgrid/exportd/internal/jwt"
	"github.com/motorgrid/exportd/internal/logger"
	"github.com/motorgrid/exportd/internal/notify"
)

type stubClient struct {
	startRes *erp.StartExportResult
	startErr error
}

func (s *stubClient) StartExport(context.Context, *erp.ExportParams) (*erp.StartExportResult, error) {
	return s.startRes, s.startErr
}

func (s *stubClient) ExportStatus(context.Context, string) (*erp.StatusResult, error) {
	return &erp.StatusResult{Status: "PENDING"}, nil
}

type staticResolver struct{ base string }

func (r staticResolver) ResolveURL(filePath string) string { return r.base + filePath }

func testRouter(t *testing.T, client *stubClient, session *Session) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.StdLogger()
	svc := export.NewService(&config.Export{
		PollInterval:    time.Hour, // polling never fires in these tests
		CleanupInterval: time.Hour,
		MaxAge:          time.Hour,
	}, log, client, notify.Noop{})

	downloader := export.NewDownloader(staticResolver{base: "http://127.0.0.1:0"}, session.Token, time.Second)
	handler := NewHandler(svc, downloader, t.TempDir(), session, jwt.NewTokenManager("test-secret"), NewHub(log), log)

	r := gin.New()
	r.POST("/v1/exports", handler.CreateExport)
	r.GET("/v1/exports", handler.ListExports)
	r.GET("/v1/exports/:task_id", handler.GetExport)
	r.DELETE("/v1/exports/:task_id/poller", handler.StopPoller)
	r.GET("/v1/exports/:task_id/file", handler.DownloadFile)
	r.POST("/v1/exports/:task_id/save", handler.SaveFile)
	r.GET("/health", handler.Health)
	return r, handler
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateExportSync(t *testing.T) {
	r, _ := testRouter(t, &stubClient{
		startRes: &erp.StartExportResult{FilePath: "/files/report.xlsx"},
	}, NewSession(""))

	w := doJSON(r, http.MethodPost, "/v1/exports", `{"format":"excel","vendor":"bosch"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"task_id":"sync-`) {
		t.Errorf("missing sync task ID: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"SUCCESS"`) {
		t.Errorf("expected immediate SUCCESS: %s", w.Body.String())
	}
}

func TestCreateExportRejectsBadFormat(t *testing.T) {
	r, _ := testRouter(t, &stubClient{}, NewSession(""))

	w := doJSON(r, http.MethodPost, "/v1/exports", `{"format":"csv"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateExportUpstreamRejection(t *testing.T) {
	r, _ := testRouter(t, &stubClient{
		startRes: &erp.StartExportResult{Error: true, Message: "quota exceeded"},
	}, NewSession(""))

	w := doJSON(r, http.MethodPost, "/v1/exports", `{"format":"excel"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503, body = %s", w.Code, w.Body.String())
	}
}

func TestGetExportUnknown(t *testing.T) {
	r, _ := testRouter(t, &stubClient{}, NewSession(""))

	req := httptest.NewRequest(http.MethodGet, "/v1/exports/absent", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestStopPollerAlwaysSucceeds(t *testing.T) {
	r, _ := testRouter(t, &stubClient{}, NewSession(""))

	req := httptest.NewRequest(http.MethodDelete, "/v1/exports/absent/poller", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestDownloadRequiresAuthentication(t *testing.T) {
	session := NewSession("") // logged out
	r, _ := testRouter(t, &stubClient{
		startRes: &erp.StartExportResult{FilePath: "/files/report.xlsx"},
	}, session)

	w := doJSON(r, http.MethodPost, "/v1/exports", `{"format":"excel"}`)
	taskID := extractTaskID(t, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/v1/exports/"+taskID+"/file", nil)
	got := httptest.NewRecorder()
	r.ServeHTTP(got, req)
	if got.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401, body = %s", got.Code, got.Body.String())
	}
}

func TestDownloadUnfinishedJobConflicts(t *testing.T) {
	r, _ := testRouter(t, &stubClient{
		startRes: &erp.StartExportResult{TaskID: "task-1"},
	}, NewSession("tok"))

	w := doJSON(r, http.MethodPost, "/v1/exports", `{"format":"excel"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/exports/task-1/file", nil)
	got := httptest.NewRecorder()
	r.ServeHTTP(got, req)
	if got.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", got.Code)
	}
}

func TestSaveFileRequiresAuthentication(t *testing.T) {
	r, _ := testRouter(t, &stubClient{
		startRes: &erp.StartExportResult{FilePath: "/files/report.xlsx"},
	}, NewSession(""))

	w := doJSON(r, http.MethodPost, "/v1/exports", `{"format":"excel"}`)
	taskID := extractTaskID(t, w.Body.String())

	got := httptest.NewRecorder()
	r.ServeHTTP(got, httptest.NewRequest(http.MethodPost, "/v1/exports/"+taskID+"/save", nil))
	if got.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", got.Code)
	}
}

func extractTaskID(t *testing.T, body string) string {
	t.Helper()
	const marker = `"task_id":"`
	idx := strings.Index(body, marker)
	if idx < 0 {
		t.Fatalf("no task_id in %s", body)
	}
	rest := body[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		t.Fatalf("malformed body %s", body)
	}
	return rest[:end]
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tm := jwt.NewTokenManager("test-secret")
	cfg := &config.Auth{
		JWT:       &config.JWT{Secret: "test-secret"},
		Whitelist: []string{"/v1/open"},
	}

	r := gin.New()
	r.Use(AuthMiddleware(tm, cfg, logger.StdLogger()))
	r.GET("/v1/open", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/v1/closed", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// Whitelisted path needs no token.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/open", nil))
	if w.Code != http.StatusOK {
		t.Errorf("whitelisted path blocked: %d", w.Code)
	}

	// Protected path without token.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/closed", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token allowed: %d", w.Code)
	}

	// Garbage token.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/closed", nil)
	req.Header.Set("Authorization", "Bearer nope")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token allowed: %d", w.Code)
	}

	// Valid token via header.
	token, err := tm.GenerateAccessToken("jti", nil)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/closed", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token rejected: %d", w.Code)
	}

	// Valid token via query parameter (websocket upgrade path).
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/closed?token="+token, nil))
	if w.Code != http.StatusOK {
		t.Errorf("query token rejected: %d", w.Code)
	}
}

func TestSession(t *testing.T) {
	s := NewSession("")
	if s.Active() {
		t.Error("empty session reported active")
	}
	s.Set("tok")
	if !s.Active() || s.Token() != "tok" {
		t.Error("session not updated")
	}
	s.Clear()
	if s.Active() {
		t.Error("cleared session reported active")
	}
}
