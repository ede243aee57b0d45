package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/adrotate/suffixcore/internal/config"
	"github.com/adrotate/suffixcore/internal/jobs"
	"github.com/adrotate/suffixcore/internal/lease"
	"github.com/adrotate/suffixcore/internal/progress"
	"github.com/adrotate/suffixcore/internal/stock"
)

// Deps bundles everything NewServer wires into the route table. Every
// route is registered unconditionally, so every field is required: a nil
// dependency is dereferenced when one of its routes is requested.
type Deps struct {
	Port            int
	AdminToken      string
	CronSecret      string
	APIMaxBodyBytes int64

	KeyResolver KeyResolver
	Lease       *lease.Engine
	Campaigns   CampaignLookupRepo
	ClickTasks  ClickTasksRepo
	Alerts      AlertsRepo
	Jobs        *jobs.Registry
	Config      *config.Manager
	Progress    *progress.Broker
	Producer    *stock.Producer
}

// Server wraps the HTTP server and mux for the suffix rotation core's API
// (SPEC_FULL.md §6.1), following the reference's NewServer/ListenAndServe/
// Shutdown/Handler shape.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer builds a Server with every route in SPEC_FULL.md §6.1 wired.
func NewServer(d Deps) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())

	userAuthed := http.NewServeMux()
	userAuthed.Handle("POST /api/v1/lease", HandleLease(d.Lease))
	userAuthed.Handle("POST /api/v1/lease/batch", HandleLeaseBatch(d.Lease))
	userAuthed.Handle("POST /api/v1/ack", HandleAck(d.Lease))
	userAuthed.Handle("POST /api/v1/ack/batch", HandleAckBatch(d.Lease))
	userAuthed.Handle("POST /api/v1/campaigns/lookup", HandleCampaignLookup(d.Campaigns))
	userAuthed.Handle("POST /api/v1/stock/replenish", HandleForceReplenish(d.Producer, d.Campaigns))
	userAuthed.Handle("POST /api/v1/click-tasks", HandleCreateClickTask(d.ClickTasks))
	userAuthed.Handle("GET /api/v1/click-tasks/{id}", HandleGetClickTask(d.ClickTasks))
	userAuthed.Handle("POST /api/v1/click-tasks/{id}/actions/cancel", HandleCancelClickTask(d.ClickTasks))
	userAuthed.Handle("GET /api/v1/stream/progress/{jobRunId}", HandleProgressStream(d.Progress))

	limitedUserAuthed := RequestBodyLimitMiddleware(d.APIMaxBodyBytes, userAuthed)
	mux.Handle("/api/v1/lease", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))
	mux.Handle("/api/v1/lease/", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))
	mux.Handle("/api/v1/ack", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))
	mux.Handle("/api/v1/ack/", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))
	mux.Handle("/api/v1/campaigns/", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))
	mux.Handle("/api/v1/click-tasks", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))
	mux.Handle("/api/v1/click-tasks/", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))
	mux.Handle("/api/v1/stream/", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))
	mux.Handle("/api/v1/stock/", UserAuthMiddleware(d.KeyResolver, limitedUserAuthed))

	adminAuthed := http.NewServeMux()
	adminAuthed.Handle("GET /api/v1/jobs", HandleListJobs(d.Jobs))
	adminAuthed.Handle("GET /api/v1/alerts", HandleListAlerts(d.Alerts))
	adminAuthed.Handle("POST /api/v1/alerts/{id}/actions/acknowledge", HandleAcknowledgeAlert(d.Alerts))
	adminAuthed.Handle("GET /api/v1/system/config", HandleSystemConfig(d.Config))
	adminAuthed.Handle("PATCH /api/v1/system/config", HandlePatchSystemConfig(d.Config))

	limitedAdminAuthed := RequestBodyLimitMiddleware(d.APIMaxBodyBytes, adminAuthed)
	mux.Handle("/api/v1/jobs", AdminAuthMiddleware(d.AdminToken, limitedAdminAuthed))
	mux.Handle("/api/v1/alerts", AdminAuthMiddleware(d.AdminToken, limitedAdminAuthed))
	mux.Handle("/api/v1/alerts/", AdminAuthMiddleware(d.AdminToken, limitedAdminAuthed))
	mux.Handle("/api/v1/system/", AdminAuthMiddleware(d.AdminToken, limitedAdminAuthed))

	// Job execution is cron-reachable: any registered job may be triggered
	// by the shared secret instead of the admin token (SPEC_FULL.md §6.1).
	cronOrAdmin := http.NewServeMux()
	cronOrAdmin.Handle("POST /api/v1/jobs/{name}/actions/execute", HandleExecuteJob(d.Jobs, d.Progress))
	mux.Handle("/api/v1/jobs/", CronOrAdminMiddleware(d.AdminToken, d.CronSecret,
		RequestBodyLimitMiddleware(d.APIMaxBodyBytes, cronOrAdmin)))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", d.Port),
		Handler: mux,
	}
	return &Server{httpServer: srv, mux: mux}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
