package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRegistry_ExecuteJob_RunsHandlerAndRecordsHistory(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int32
	if err := r.Register(Definition{
		Name:            "stock_replenish",
		Description:     "top up suffix stock",
		IntervalMinutes: 10,
		Enabled:         true,
		Handler: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec, err := r.ExecuteJob(context.Background(), "stock_replenish")
	if err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if !rec.Success {
		t.Fatalf("expected Success=true, got %+v", rec)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}

	hist := r.History("stock_replenish")
	if len(hist) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist))
	}
}

func TestRegistry_ExecuteJob_RecordsFailure(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wantErr := errors.New("boom")
	if err := r.Register(Definition{
		Name:    "monitoring_alert",
		Enabled: true,
		Handler: func(ctx context.Context) error { return wantErr },
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec, err := r.ExecuteJob(context.Background(), "monitoring_alert")
	if err == nil {
		t.Fatal("expected error")
	}
	if rec.Success {
		t.Fatalf("expected Success=false, got %+v", rec)
	}
	if rec.Error != "boom" {
		t.Fatalf("expected error message 'boom', got %q", rec.Error)
	}
}

func TestRegistry_ExecuteJob_UnknownName(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.ExecuteJob(context.Background(), "does_not_exist"); err == nil {
		t.Fatal("expected error for unknown job name")
	}
}

func TestRegistry_List_ReflectsRegisteredJobs(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Register(Definition{Name: "click_task_execute", IntervalMinutes: 1, Enabled: true, Handler: func(ctx context.Context) error { return nil }}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	infos := r.List()
	if len(infos) != 1 {
		t.Fatalf("expected 1 job, got %d", len(infos))
	}
	if infos[0].Name != "click_task_execute" {
		t.Fatalf("unexpected job name %q", infos[0].Name)
	}
	if infos[0].LastRun != nil {
		t.Fatalf("expected LastRun nil before execution")
	}

	if _, err := r.ExecuteJob(context.Background(), "click_task_execute"); err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	infos = r.List()
	if infos[0].LastRun == nil {
		t.Fatal("expected LastRun set after execution")
	}
}

func TestRegistry_SetEnabled_UnknownName(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.SetEnabled("nope", false); err == nil {
		t.Fatal("expected error for unknown job name")
	}
}
