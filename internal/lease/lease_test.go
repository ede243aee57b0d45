package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adrotate/suffixcore/internal/config"
	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/store"
)

func newTestEngine(t *testing.T, patch func(*config.RuntimeConfig)) (*Engine, *store.Store) {
	t.Helper()
	st, closer, err := store.Bootstrap(t.TempDir())
	if err != nil {
		t.Fatalf("bootstrap store: %v", err)
	}
	t.Cleanup(func() { closer.Close() })

	cfg := config.NewDefaultRuntimeConfig()
	if patch != nil {
		patch(cfg)
	}
	eng := New(st, func() *config.RuntimeConfig { return cfg }, nil)
	return eng, st
}

func seedCampaignWithStock(t *testing.T, st *store.Store, userID, campaignID string, n int) {
	t.Helper()
	now := time.Now()
	if _, _, err := st.UpsertCampaignMeta(userID, campaignID, model.CampaignMeta{
		CampaignName: "test",
		Country:      "US",
		FinalURL:     "example.com",
	}, now); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	if _, err := st.InsertAffiliateLink(model.AffiliateLink{
		UserID: userID, CampaignID: campaignID, TargetURL: "https://aff.example/go", Enabled: true, Priority: 1,
	}, now); err != nil {
		t.Fatalf("seed affiliate link: %v", err)
	}

	items := make([]model.SuffixStockItem, n)
	for i := range items {
		items[i] = model.SuffixStockItem{UserID: userID, CampaignID: campaignID, Suffix: "gclid=seed", ExitIP: "1.2.3.4"}
	}
	if err := st.InsertStockItems(items, now); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func TestLeaseCombinedCommitAppliesImmediately(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	seedCampaignWithStock(t, st, "u1", "c1", 1)

	res, err := eng.Lease(context.Background(), "u1", Request{
		CampaignID:       "c1",
		NowClicks:        5,
		ObservedAt:       time.Now(),
		WindowStartEpoch: time.Now().Unix(),
		IdempotencyKey:   "key-1",
	})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if res.Action != ActionApply {
		t.Fatalf("expected APPLY, got %s", res.Action)
	}
	if res.FinalURLSuffix != "gclid=seed" {
		t.Fatalf("unexpected suffix: %q", res.FinalURLSuffix)
	}

	state, err := st.GetClickState("u1", "c1")
	if err != nil {
		t.Fatalf("get click state: %v", err)
	}
	if state.LastAppliedClicks != 5 {
		t.Fatalf("expected lastAppliedClicks=5, got %d", state.LastAppliedClicks)
	}
}

func TestLeaseIdempotencyShortCircuit(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	seedCampaignWithStock(t, st, "u1", "c1", 2)

	req := Request{
		CampaignID:       "c1",
		NowClicks:        5,
		ObservedAt:       time.Now(),
		WindowStartEpoch: time.Now().Unix(),
		IdempotencyKey:   "dup-key",
	}
	first, err := eng.Lease(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("first lease: %v", err)
	}
	second, err := eng.Lease(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if first.LeaseID != second.LeaseID {
		t.Fatalf("expected idempotent replay to return the same lease id, got %d vs %d", first.LeaseID, second.LeaseID)
	}
}

func TestLeaseNoStockTriggersReplenish(t *testing.T) {
	var triggered bool
	var mu sync.Mutex

	st, closer, err := store.Bootstrap(t.TempDir())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { closer.Close() })
	seedCampaignWithStock(t, st, "u1", "c1", 0)

	cfg := config.NewDefaultRuntimeConfig()
	eng := New(st, func() *config.RuntimeConfig { return cfg }, func(userID, campaignID string) {
		mu.Lock()
		triggered = true
		mu.Unlock()
	})

	_, err = eng.Lease(context.Background(), "u1", Request{
		CampaignID:       "c1",
		NowClicks:        1,
		ObservedAt:       time.Now(),
		WindowStartEpoch: time.Now().Unix(),
		IdempotencyKey:   "key-empty",
	})
	if err == nil {
		t.Fatalf("expected NO_STOCK error")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := triggered
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if !triggered {
		t.Fatalf("expected replenish trigger to fire")
	}
}

func TestLeaseNoopWhenClicksHaveNotAdvanced(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	seedCampaignWithStock(t, st, "u1", "c1", 2)

	first, err := eng.Lease(context.Background(), "u1", Request{
		CampaignID:       "c1",
		NowClicks:        100,
		ObservedAt:       time.Now(),
		WindowStartEpoch: time.Now().Unix(),
		IdempotencyKey:   "key-first",
	})
	if err != nil {
		t.Fatalf("first lease: %v", err)
	}
	if first.Action != ActionApply {
		t.Fatalf("expected first call to APPLY, got %s", first.Action)
	}

	second, err := eng.Lease(context.Background(), "u1", Request{
		CampaignID:       "c1",
		NowClicks:        100,
		ObservedAt:       time.Now(),
		WindowStartEpoch: time.Now().Unix(),
		IdempotencyKey:   "key-second",
	})
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if second.Action != ActionNoop {
		t.Fatalf("expected NOOP when nowClicks has not advanced past lastAppliedClicks, got %s", second.Action)
	}
	if second.Reason == "" {
		t.Fatalf("expected a non-empty reason on NOOP")
	}

	state, err := st.GetClickState("u1", "c1")
	if err != nil {
		t.Fatalf("get click state: %v", err)
	}
	if state.LastAppliedClicks != 100 {
		t.Fatalf("expected lastAppliedClicks to remain 100, got %d", state.LastAppliedClicks)
	}
}

func TestLeasePendingImportWithoutMeta(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	_, err := eng.Lease(context.Background(), "u1", Request{
		CampaignID:       "unknown",
		NowClicks:        1,
		ObservedAt:       time.Now(),
		WindowStartEpoch: time.Now().Unix(),
		IdempotencyKey:   "key-pending",
	})
	if err == nil {
		t.Fatalf("expected PENDING_IMPORT error")
	}
}

func TestAckLeaveLeasedThenAckApplied(t *testing.T) {
	eng, st := newTestEngine(t, func(c *config.RuntimeConfig) { c.CombinedCommit = false })
	seedCampaignWithStock(t, st, "u1", "c1", 1)

	leaseRes, err := eng.Lease(context.Background(), "u1", Request{
		CampaignID:       "c1",
		NowClicks:        7,
		ObservedAt:       time.Now(),
		WindowStartEpoch: time.Now().Unix(),
		IdempotencyKey:   "key-ack",
	})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}

	ackRes, err := eng.Ack(context.Background(), "u1", AckRequest{
		LeaseID:    leaseRes.LeaseID,
		CampaignID: "c1",
		Applied:    true,
		AppliedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ackRes.Idempotent {
		t.Fatalf("expected a real transition, not an idempotent replay")
	}

	state, err := st.GetClickState("u1", "c1")
	if err != nil {
		t.Fatalf("get click state: %v", err)
	}
	if state.LastAppliedClicks != 7 {
		t.Fatalf("expected lastAppliedClicks=7 after ack, got %d", state.LastAppliedClicks)
	}

	// Second ack on the now-consumed lease must be idempotent.
	ackRes2, err := eng.Ack(context.Background(), "u1", AckRequest{
		LeaseID: leaseRes.LeaseID, CampaignID: "c1", Applied: true, AppliedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if !ackRes2.Idempotent {
		t.Fatalf("expected idempotent replay on terminal lease")
	}
}
