// Package stock implements the Stock Producer (spec.md §4.D): for each
// eligible campaign, top up its available suffix stock up to a dynamic
// low-watermark by driving internal/suffixgen, bounded by per-campaign and
// cross-campaign concurrency limits.
package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adrotate/suffixcore/internal/apierr"
	"github.com/adrotate/suffixcore/internal/config"
	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/suffixgen"
)

// Repo is the subset of internal/store the producer needs.
type Repo interface {
	ListEligibleCampaigns() ([]model.Campaign, error)
	CountAvailableStock(userID, campaignID string) (int, error)
	CountConsumedSince(userID, campaignID string, since time.Time) (int, error)
	EffectiveAffiliateLink(userID, campaignID string) (*model.AffiliateLink, error)
	InsertStockItems(items []model.SuffixStockItem, now time.Time) error
	InsertAuditEntry(e model.ProductionAuditLogEntry) error
}

// Generator is the subset of internal/suffixgen the producer needs.
type Generator interface {
	Generate(ctx context.Context, p suffixgen.Params) (*suffixgen.Result, error)
}

// CampaignResult summarizes one campaign's production attempt.
type CampaignResult struct {
	UserID     string
	CampaignID string
	Requested  int
	Produced   int
	Failed     int
	Action     string // "produced" | "no_stock" | "skipped" | "failed"
	Err        error
}

// Producer runs the §4.D algorithm against Repo/Generator, reading
// concurrency and watermark knobs from cfg on every call so a live config
// patch (§4.K) takes effect on the next sweep without restarting anything.
type Producer struct {
	repo Repo
	gen  Generator
	cfg  func() *config.RuntimeConfig
}

// New builds a Producer.
func New(repo Repo, gen Generator, cfg func() *config.RuntimeConfig) *Producer {
	return &Producer{repo: repo, gen: gen, cfg: cfg}
}

// ProduceForCampaign tops up one campaign's stock (spec.md §4.D steps 1-6).
// force bypasses the watermark skip — spec.md §4.D's single-campaign
// replenish endpoint ("If available >= watermark and not forced, return
// skipped") — so an operator can drive production on demand regardless of
// where the campaign currently sits relative to its watermark.
func (p *Producer) ProduceForCampaign(ctx context.Context, c model.Campaign, triggerReason string, force bool) CampaignResult {
	cfg := p.cfg()
	started := time.Now()

	available, err := p.repo.CountAvailableStock(c.UserID, c.CampaignID)
	if err != nil {
		return p.fail(c, triggerReason, started, 0, fmt.Errorf("count available stock: %w", err))
	}

	since := started.Add(-cfg.WatermarkHistoryWindow.Std())
	c24, err := p.repo.CountConsumedSince(c.UserID, c.CampaignID, since)
	if err != nil {
		c24 = 0 // fall back to the configured default watermark rather than abort the sweep
	}
	watermark := DynamicWatermark(c24, cfg)

	if available >= watermark && !force {
		return CampaignResult{UserID: c.UserID, CampaignID: c.CampaignID, Action: "skipped"}
	}
	// spec.md §4.D step 2: produceCount = max(watermark - available, batchFloor) —
	// always top up by at least a full batch rather than dribbling in just
	// the shortfall, so a steady trickle of consumption doesn't trigger a
	// separate proxy-heavy production round for every single suffix.
	needed := watermark - available
	if needed < cfg.ProduceBatchSize {
		needed = cfg.ProduceBatchSize
	}

	link, err := p.repo.EffectiveAffiliateLink(c.UserID, c.CampaignID)
	if err != nil {
		return p.fail(c, triggerReason, started, needed, fmt.Errorf("effective affiliate link: %w", err))
	}

	produced, failed := p.generateBatch(ctx, c, link, needed, cfg)

	result := CampaignResult{
		UserID:     c.UserID,
		CampaignID: c.CampaignID,
		Requested:  needed,
		Produced:   len(produced),
		Failed:     failed,
	}
	switch {
	case len(produced) > 0:
		result.Action = "produced"
	default:
		result.Action = "no_stock"
	}

	if len(produced) > 0 {
		if err := p.repo.InsertStockItems(produced, time.Now()); err != nil {
			result.Err = fmt.Errorf("insert stock items: %w", err)
			result.Action = "failed"
		}
	}

	_ = p.repo.InsertAuditEntry(model.ProductionAuditLogEntry{
		UserID:        c.UserID,
		CampaignID:    c.CampaignID,
		Action:        result.Action,
		Requested:     result.Requested,
		Produced:      result.Produced,
		Failed:        result.Failed,
		TriggerReason: triggerReason,
		StartedAt:     started,
		FinishedAt:    time.Now(),
	})

	return result
}

// generateBatch runs up to `needed` suffixgen.Generate calls concurrently,
// bounded by cfg.StockConcurrency (spec.md §4.D "per-campaign bounded
// concurrency"), grounded on the teacher's probe.ProbeManager semaphore
// pattern (buffered channel + WaitGroup).
func (p *Producer) generateBatch(ctx context.Context, c model.Campaign, link *model.AffiliateLink, needed int, cfg *config.RuntimeConfig) ([]model.SuffixStockItem, int) {
	conc := cfg.StockConcurrency
	if conc <= 0 {
		conc = 1
	}
	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var produced []model.SuffixStockItem
	var failed int

	for i := 0; i < needed; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := p.gen.Generate(ctx, suffixgen.Params{
				UserID:       c.UserID,
				CampaignID:   c.CampaignID,
				CountryCode:  c.CountryCode,
				AffiliateURL: link.TargetURL,
				TargetDomain: c.FinalURL,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return
			}
			produced = append(produced, model.SuffixStockItem{
				UserID:       c.UserID,
				CampaignID:   c.CampaignID,
				Suffix:       res.Suffix,
				ExitIP:       res.ExitIP,
				SourceLinkID: link.ID,
			})
		}()
	}
	wg.Wait()
	return produced, failed
}

func (p *Producer) fail(c model.Campaign, triggerReason string, started time.Time, requested int, err error) CampaignResult {
	_ = p.repo.InsertAuditEntry(model.ProductionAuditLogEntry{
		UserID:        c.UserID,
		CampaignID:    c.CampaignID,
		Action:        "failed",
		Requested:     requested,
		TriggerReason: triggerReason,
		StartedAt:     started,
		FinishedAt:    time.Now(),
	})
	return CampaignResult{UserID: c.UserID, CampaignID: c.CampaignID, Requested: requested, Action: "failed", Err: err}
}

// SweepResult summarizes a full cross-campaign sweep.
type SweepResult struct {
	Results []CampaignResult
	Failed  []CampaignResult
}

// Sweep runs ProduceForCampaign across every eligible campaign, bounded by
// cfg.CampaignConcurrency cross-campaign concurrency (spec.md §4.D "outer
// concurrency limiter, configured value"). A single campaign's failure
// never aborts the rest of the sweep.
func (p *Producer) Sweep(ctx context.Context, triggerReason string) (SweepResult, error) {
	campaigns, err := p.repo.ListEligibleCampaigns()
	if err != nil {
		return SweepResult{}, apierr.Wrap(apierr.InternalError, "list eligible campaigns", err)
	}

	cfg := p.cfg()
	conc := cfg.CampaignConcurrency
	if conc <= 0 {
		conc = 1
	}
	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]CampaignResult, 0, len(campaigns))

	for _, c := range campaigns {
		c := c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r := p.ProduceForCampaign(ctx, c, triggerReason, false)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	out := SweepResult{Results: results}
	for _, r := range results {
		if r.Action == "failed" {
			out.Failed = append(out.Failed, r)
		}
	}
	return out, nil
}
