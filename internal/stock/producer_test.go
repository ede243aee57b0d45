package stock

import (
	"context"
	"testing"
	"time"

	"github.com/adrotate/suffixcore/internal/config"
	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/suffixgen"
)

type fakeRepo struct {
	available int
	consumed  int
	link      *model.AffiliateLink
	inserted  []model.SuffixStockItem
	audits    []model.ProductionAuditLogEntry
}

func (f *fakeRepo) ListEligibleCampaigns() ([]model.Campaign, error) { return nil, nil }
func (f *fakeRepo) CountAvailableStock(userID, campaignID string) (int, error) {
	return f.available, nil
}
func (f *fakeRepo) CountConsumedSince(userID, campaignID string, since time.Time) (int, error) {
	return f.consumed, nil
}
func (f *fakeRepo) EffectiveAffiliateLink(userID, campaignID string) (*model.AffiliateLink, error) {
	return f.link, nil
}
func (f *fakeRepo) InsertStockItems(items []model.SuffixStockItem, now time.Time) error {
	f.inserted = append(f.inserted, items...)
	return nil
}
func (f *fakeRepo) InsertAuditEntry(e model.ProductionAuditLogEntry) error {
	f.audits = append(f.audits, e)
	return nil
}

type fakeGenerator struct{ fail bool }

func (g *fakeGenerator) Generate(ctx context.Context, p suffixgen.Params) (*suffixgen.Result, error) {
	if g.fail {
		return nil, errFakeGenerate
	}
	return &suffixgen.Result{Suffix: "gclid=abc", ExitIP: "1.2.3.4"}, nil
}

var errFakeGenerate = &fakeErr{"generate failed"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

func TestProduceForCampaignSkipsWhenAboveWatermark(t *testing.T) {
	repo := &fakeRepo{available: 100, link: &model.AffiliateLink{ID: 1, TargetURL: "https://aff.example/go"}}
	cfg := config.NewDefaultRuntimeConfig()
	p := New(repo, &fakeGenerator{}, func() *config.RuntimeConfig { return cfg })

	result := p.ProduceForCampaign(context.Background(), model.Campaign{UserID: "u1", CampaignID: "c1", CountryCode: "US"}, "scheduled", false)
	if result.Action != "skipped" {
		t.Fatalf("expected skipped, got %s", result.Action)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("expected no stock items inserted")
	}
}

func TestProduceForCampaignProducesBelowWatermark(t *testing.T) {
	repo := &fakeRepo{available: 0, link: &model.AffiliateLink{ID: 1, TargetURL: "https://aff.example/go"}}
	cfg := config.NewDefaultRuntimeConfig()
	p := New(repo, &fakeGenerator{}, func() *config.RuntimeConfig { return cfg })

	result := p.ProduceForCampaign(context.Background(), model.Campaign{UserID: "u1", CampaignID: "c1", CountryCode: "US"}, "scheduled", false)
	if result.Action != "produced" {
		t.Fatalf("expected produced, got %s (err=%v)", result.Action, result.Err)
	}
	if result.Produced != cfg.ProduceBatchSize {
		t.Fatalf("expected %d produced, got %d", cfg.ProduceBatchSize, result.Produced)
	}
	if len(repo.inserted) != cfg.ProduceBatchSize {
		t.Fatalf("expected %d items inserted, got %d", cfg.ProduceBatchSize, len(repo.inserted))
	}
	if len(repo.audits) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(repo.audits))
	}
}

func TestProduceForCampaignForceBypassesWatermark(t *testing.T) {
	repo := &fakeRepo{available: 100, link: &model.AffiliateLink{ID: 1, TargetURL: "https://aff.example/go"}}
	cfg := config.NewDefaultRuntimeConfig()
	p := New(repo, &fakeGenerator{}, func() *config.RuntimeConfig { return cfg })

	result := p.ProduceForCampaign(context.Background(), model.Campaign{UserID: "u1", CampaignID: "c1", CountryCode: "US"}, "forced", true)
	if result.Action != "produced" {
		t.Fatalf("expected forced call to produce despite available >= watermark, got %s (err=%v)", result.Action, result.Err)
	}
	if len(repo.inserted) != cfg.ProduceBatchSize {
		t.Fatalf("expected %d items inserted, got %d", cfg.ProduceBatchSize, len(repo.inserted))
	}
	if len(repo.audits) != 1 || repo.audits[0].TriggerReason != "forced" {
		t.Fatalf("expected one audit entry with triggerReason=forced, got %+v", repo.audits)
	}
}

func TestProduceForCampaignAllFailuresReportsNoStock(t *testing.T) {
	repo := &fakeRepo{available: 0, link: &model.AffiliateLink{ID: 1, TargetURL: "https://aff.example/go"}}
	cfg := config.NewDefaultRuntimeConfig()
	p := New(repo, &fakeGenerator{fail: true}, func() *config.RuntimeConfig { return cfg })

	result := p.ProduceForCampaign(context.Background(), model.Campaign{UserID: "u1", CampaignID: "c1", CountryCode: "US"}, "scheduled", false)
	if result.Action != "no_stock" {
		t.Fatalf("expected no_stock, got %s", result.Action)
	}
	if result.Failed != cfg.ProduceBatchSize {
		t.Fatalf("expected %d failed, got %d", cfg.ProduceBatchSize, result.Failed)
	}
}
