package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/adrotate/suffixcore/internal/jobs"
	"github.com/adrotate/suffixcore/internal/progress"
)

type jobInfoDTO struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	IntervalMinutes int        `json:"intervalMinutes"`
	CronExpr        string     `json:"cronExpr,omitempty"`
	Enabled         bool       `json:"enabled"`
	LastRun         *time.Time `json:"lastRun,omitempty"`
	NextRun         *time.Time `json:"nextRun,omitempty"`
}

func jobInfoToDTO(i jobs.Info) jobInfoDTO {
	return jobInfoDTO{
		Name:            i.Name,
		Description:     i.Description,
		IntervalMinutes: i.IntervalMinutes,
		CronExpr:        i.CronExpr,
		Enabled:         i.Enabled,
		LastRun:         i.LastRun,
		NextRun:         i.NextRun,
	}
}

// HandleListJobs handles GET /api/v1/jobs (spec.md §4.H's registry view).
func HandleListJobs(reg *jobs.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := reg.List()
		out := make([]jobInfoDTO, len(infos))
		for i, info := range infos {
			out[i] = jobInfoToDTO(info)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"jobs": out})
	}
}

type jobExecutionResultDTO struct {
	JobRunID   string `json:"jobRunId"`
	JobName    string `json:"jobName"`
	StartedAt  string `json:"startedAt"`
	DurationMs int64  `json:"durationMs"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// HandleExecuteJob handles POST /api/v1/jobs/{name}/actions/execute
// (spec.md §4.H "executeJob(name) for ad-hoc invocation"). Reachable either
// by an admin Bearer token or by the cron shared secret (SPEC_FULL.md
// §6.1); the shared secret is accepted for every registered job name, not
// only stock_replenish/monitoring_alert/click_task_execute. A
// progress run is opened around the call so the caller can optionally
// watch it unfold via GET /api/v1/stream/progress/{jobRunId} (spec.md
// §4.I); job handlers that never report progress still close it cleanly
// with the init/terminal pair below.
func HandleExecuteJob(reg *jobs.Registry, broker *progress.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := PathParam(r, "name")
		if name == "" {
			writeInvalidArgument(w, "name: must be non-empty")
			return
		}

		jobRunID := uuid.NewString()
		pub := broker.Start(jobRunID)
		pub.Publish(progress.Event{Stage: "init", Message: "job " + name + " started"})

		ctx := progress.WithPublisher(r.Context(), pub)
		rec, err := reg.ExecuteJob(ctx, name)
		if err != nil {
			pub.Publish(progress.Event{Stage: "error", Message: err.Error()})
			WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}

		stage := "done"
		if !rec.Success {
			stage = "error"
		}
		pub.Publish(progress.Event{Stage: stage, Message: rec.Error})

		WriteJSON(w, http.StatusOK, jobExecutionResultDTO{
			JobRunID:   jobRunID,
			JobName:    rec.JobName,
			StartedAt:  rec.StartedAt.Format(time.RFC3339),
			DurationMs: rec.Duration.Milliseconds(),
			Success:    rec.Success,
			Error:      rec.Error,
		})
	}
}
