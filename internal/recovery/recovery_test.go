package recovery

import (
	"testing"
	"time"

	"github.com/adrotate/suffixcore/internal/config"
	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/store"
)

func newTestServices(t *testing.T) (*Services, *store.Store) {
	t.Helper()
	st, closer, err := store.Bootstrap(t.TempDir())
	if err != nil {
		t.Fatalf("bootstrap store: %v", err)
	}
	t.Cleanup(func() { closer.Close() })

	cfg := config.NewDefaultRuntimeConfig()
	return New(st, func() *config.RuntimeConfig { return cfg }), st
}

func seedCampaign(t *testing.T, st *store.Store, userID, campaignID string, n int) {
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

func TestExpireLeasesRestoresStock(t *testing.T) {
	svc, st := newTestServices(t)
	seedCampaign(t, st, "u1", "c1", 1)

	now := time.Now()
	item, err := st.AllocateOldestAvailable("u1", "c1", now)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	tx, err := st.BeginTx()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if _, err := store.InsertLeaseLeasedTx(tx, model.SuffixLease{
		UserID: "u1", CampaignID: "c1", StockItemID: item.ID, IdempotencyKey: "k1",
	}, now); err != nil {
		t.Fatalf("insert lease: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	expired, err := svc.ExpireLeases(now.Add(16 * time.Minute))
	if err != nil {
		t.Fatalf("expire leases: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 lease expired, got %d", expired)
	}

	available, err := st.CountAvailableStock("u1", "c1")
	if err != nil {
		t.Fatalf("count available: %v", err)
	}
	if available != 1 {
		t.Fatalf("expected restored stock item to be available again, got %d", available)
	}
}

func TestExpireStockMarksAged(t *testing.T) {
	svc, st := newTestServices(t)
	seedCampaign(t, st, "u1", "c1", 3)

	expired, err := svc.ExpireStock(time.Now().Add(49 * time.Hour))
	if err != nil {
		t.Fatalf("expire stock: %v", err)
	}
	if expired != 3 {
		t.Fatalf("expected 3 stock items aged out, got %d", expired)
	}
}

func TestReapExitIPUsages(t *testing.T) {
	svc, st := newTestServices(t)
	now := time.Now()
	if err := st.RecordExitIPUsage("u1", "c1", "9.9.9.9", now, time.Second); err != nil {
		t.Fatalf("record usage: %v", err)
	}

	n, err := svc.ReapExitIPUsages(now.Add(time.Minute))
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 usage reaped, got %d", n)
	}
}

func TestEvaluateAlertsLowStock(t *testing.T) {
	svc, st := newTestServices(t)
	seedCampaign(t, st, "u1", "c1", 0)

	alerts, err := svc.EvaluateAlerts(time.Now())
	if err != nil {
		t.Fatalf("evaluate alerts: %v", err)
	}

	var found bool
	for _, a := range alerts {
		if a.Type == model.AlertLowStock {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a low_stock alert, got %+v", alerts)
	}

	unacked, err := st.ListUnacknowledgedAlerts()
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(unacked) == 0 {
		t.Fatalf("expected the low_stock alert to be persisted")
	}
}

func TestEvaluateAlertsNoneWhenHealthy(t *testing.T) {
	svc, st := newTestServices(t)
	seedCampaign(t, st, "u1", "c1", 50)

	alerts, err := svc.EvaluateAlerts(time.Now())
	if err != nil {
		t.Fatalf("evaluate alerts: %v", err)
	}
	for _, a := range alerts {
		if a.Type == model.AlertLowStock {
			t.Fatalf("did not expect low_stock alert with healthy stock")
		}
	}
}
