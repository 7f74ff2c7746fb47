package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MacJediWizard/bosun/internal/agent"
	"github.com/MacJediWizard/bosun/internal/backup"
	"github.com/MacJediWizard/bosun/internal/metrics"
	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// noopOrchestrator satisfies handlers.Orchestrator for routing tests.
type noopOrchestrator struct{}

func (noopOrchestrator) StartBackup(ctx context.Context, req backup.StartBackupRequest) (*backup.StartResult, error) {
	return &backup.StartResult{BackupGUID: "071acb05-66a3-471b-af3c-8bbf1e4180be", Operation: models.OperationBackup, Token: "tok"}, nil
}

func (noopOrchestrator) StartRestore(ctx context.Context, req backup.StartRestoreRequest) (*backup.StartResult, error) {
	return &backup.StartResult{BackupGUID: "071acb05-66a3-471b-af3c-8bbf1e4180be", Operation: models.OperationRestore, Token: "tok"}, nil
}

func (noopOrchestrator) ListBackups(ctx context.Context, deployment, guidFilter string) ([]models.StateDocument, error) {
	return nil, nil
}

func (noopOrchestrator) RestoreInfo(ctx context.Context, deployment string) (*models.StateDocument, error) {
	return &models.StateDocument{}, nil
}

func (noopOrchestrator) OperationStatus(ctx context.Context, token string, props agent.Properties) (*models.OperationStatus, error) {
	return &models.OperationStatus{State: models.StateProcessing}, nil
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	set := metrics.New(reg)
	// Counter vectors without children gather nothing; give the registry one
	// sample so /metrics has output to assert on.
	set.OperationsStarted.WithLabelValues("backup", "on_demand").Inc()

	cfg := DefaultConfig()
	cfg.AdminUsername = "admin"
	cfg.AdminPassword = "sekrit"

	router, err := NewRouter(cfg, noopOrchestrator{}, reg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router
}

func TestPublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/healthz", "/version", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			router.Engine.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("GET %s = %d, want 200 without credentials", path, w.Code)
			}
		})
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/deployments/ccdb/backup", nil)
	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated admin request = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/deployments/ccdb/backup", nil)
	req.SetBasicAuth("admin", "sekrit")
	w = httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated admin request = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "bosun_") {
		t.Error("metrics output missing bosun namespace")
	}
}

func TestRouterRejectsBadRateLimitPeriod(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := DefaultConfig()
	cfg.RateLimitPeriod = "eventually"
	if _, err := NewRouter(cfg, noopOrchestrator{}, nil, zerolog.Nop()); err == nil {
		t.Error("NewRouter() accepted invalid rate limit period")
	}
}
