package alertwebhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/adrotate/suffixcore/internal/model"
)

func TestNotifier_Notify_EmptyURLNoOp(t *testing.T) {
	n := New()
	n.Notify(context.Background(), "", model.Alert{Type: model.AlertLowStock})
}

func TestNotifier_Notify_SuccessOnFirstAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New()
	n.Notify(context.Background(), srv.URL, model.Alert{Type: model.AlertLowStock, Level: model.AlertWarning})

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 request, got %d", hits)
	}
}

func TestNotifier_Notify_RetriesOnFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New()
	n.Notify(context.Background(), srv.URL, model.Alert{Type: model.AlertHighFailureRate})

	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 requests (1 retry), got %d", hits)
	}
}

func TestNotifier_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New()
	for i := 0; i < circuitThreshold; i++ {
		n.Notify(context.Background(), srv.URL, model.Alert{Type: model.AlertSystemHealth})
	}
	before := atomic.LoadInt32(&hits)

	// Circuit should now be open: no further requests attempted.
	n.Notify(context.Background(), srv.URL, model.Alert{Type: model.AlertSystemHealth})
	after := atomic.LoadInt32(&hits)

	if after != before {
		t.Fatalf("expected circuit open to suppress further requests, before=%d after=%d", before, after)
	}
}
