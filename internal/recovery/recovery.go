// Package recovery implements the Recovery Services (spec.md §4.G): lease
// expiry, stock aging, exit-IP reaping, and the alert evaluator. Each sweep
// is a standalone method meant to be driven by internal/jobs tickers rather
// than by its own internal scheduling.
package recovery

import (
	"fmt"
	"time"

	"github.com/adrotate/suffixcore/internal/config"
	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/stock"
)

// Repo is the subset of internal/store the recovery services need.
type Repo interface {
	ExpireStaleLeases(cutoff, now time.Time) (int, error)
	ExpireAgedStock(cutoff, now time.Time) (int64, error)
	ReapExpiredExitIPUsages(now time.Time) (int64, error)

	ListEligibleCampaigns() ([]model.Campaign, error)
	CountAvailableStock(userID, campaignID string) (int, error)
	CountConsumedSince(userID, campaignID string, since time.Time) (int, error)
	OldestLeasedAge(now time.Time) (time.Duration, bool, error)
	FailureRateSince(cutoff time.Time) (consumed, failed int, err error)
	CountAuditActionSince(action string, since time.Time) (int, error)
	InsertAlert(a model.Alert, now time.Time) (int64, error)
}

const (
	// leaseTTL is the lease-expiry cutoff (spec.md §4.G "leasedAt < now-15m").
	leaseTTL = 15 * time.Minute
	// stockTTL is the stock-aging cutoff (spec.md §4.G "createdAt < now-48h").
	stockTTL = 48 * time.Hour

	leaseTimeoutThreshold     = 10 * time.Minute
	highFailureRateWindow     = 60 * time.Minute
	highFailureRateThreshold  = 0.10
	noStockFrequentWindow     = 24 * time.Hour
	noStockFrequentThreshold  = 10
	lowStockWarningCount      = 2
	lowStockCriticalCount     = 5
)

// Services bundles the periodic recovery sweeps against Repo.
type Services struct {
	repo Repo
	cfg  func() *config.RuntimeConfig
}

// New builds a Services.
func New(repo Repo, cfg func() *config.RuntimeConfig) *Services {
	return &Services{repo: repo, cfg: cfg}
}

// ExpireLeases runs the lease-expiry sweep (spec.md §4.G, every 5 minutes).
func (s *Services) ExpireLeases(now time.Time) (int, error) {
	return s.repo.ExpireStaleLeases(now.Add(-leaseTTL), now)
}

// ExpireStock runs the stock-aging sweep (spec.md §4.G, hourly).
func (s *Services) ExpireStock(now time.Time) (int64, error) {
	return s.repo.ExpireAgedStock(now.Add(-stockTTL), now)
}

// ReapExitIPUsages deletes expired exit-IP dedup ledger rows (spec.md §4.G).
func (s *Services) ReapExitIPUsages(now time.Time) (int64, error) {
	return s.repo.ReapExpiredExitIPUsages(now)
}

// EvaluateAlerts runs the four alert rules (spec.md §4.G, every 10 minutes)
// and persists any finding as an Alert row. It never aborts partway: one
// rule's repo error is recorded in the returned error but the rest still run.
func (s *Services) EvaluateAlerts(now time.Time) ([]model.Alert, error) {
	var raised []model.Alert
	var errs []error

	if a, err := s.evalLowStock(now); err != nil {
		errs = append(errs, fmt.Errorf("low_stock: %w", err))
	} else {
		raised = append(raised, a...)
	}

	if a, ok, err := s.evalLeaseTimeout(now); err != nil {
		errs = append(errs, fmt.Errorf("lease_timeout: %w", err))
	} else if ok {
		raised = append(raised, a)
	}

	if a, ok, err := s.evalHighFailureRate(now); err != nil {
		errs = append(errs, fmt.Errorf("high_failure_rate: %w", err))
	} else if ok {
		raised = append(raised, a)
	}

	if a, ok, err := s.evalNoStockFrequent(now); err != nil {
		errs = append(errs, fmt.Errorf("no_stock_frequent: %w", err))
	} else if ok {
		raised = append(raised, a)
	}

	for _, a := range raised {
		if _, err := s.repo.InsertAlert(a, now); err != nil {
			errs = append(errs, fmt.Errorf("insert alert %s: %w", a.Type, err))
		}
	}

	if len(errs) > 0 {
		return raised, fmt.Errorf("alert evaluation: %v", errs)
	}
	return raised, nil
}

// evalLowStock raises one alert per campaign whose available stock has
// fallen short of its dynamic watermark, severity scaled by the shortfall
// (spec.md §4.G "severity by count (>5 critical, >2 warning)").
func (s *Services) evalLowStock(now time.Time) ([]model.Alert, error) {
	campaigns, err := s.repo.ListEligibleCampaigns()
	if err != nil {
		return nil, err
	}
	cfg := s.cfg()

	var out []model.Alert
	for _, c := range campaigns {
		available, err := s.repo.CountAvailableStock(c.UserID, c.CampaignID)
		if err != nil {
			continue
		}
		since := now.Add(-cfg.WatermarkHistoryWindow.Std())
		c24, err := s.repo.CountConsumedSince(c.UserID, c.CampaignID, since)
		if err != nil {
			c24 = 0
		}
		watermark := stock.DynamicWatermark(c24, cfg)
		if available >= watermark {
			continue
		}

		shortfall := watermark - available
		level := model.AlertWarning
		switch {
		case shortfall > lowStockCriticalCount:
			level = model.AlertCritical
		case shortfall > lowStockWarningCount:
			level = model.AlertWarning
		default:
			level = model.AlertInfo
		}

		out = append(out, model.Alert{
			Type:    model.AlertLowStock,
			Level:   level,
			Title:   fmt.Sprintf("Low stock for campaign %s", c.CampaignID),
			Message: fmt.Sprintf("available=%d watermark=%d userId=%s campaignId=%s", available, watermark, c.UserID, c.CampaignID),
		})
	}
	return out, nil
}

// evalLeaseTimeout raises when the oldest still-leased lease has sat unacked
// for at least leaseTimeoutThreshold.
func (s *Services) evalLeaseTimeout(now time.Time) (model.Alert, bool, error) {
	age, ok, err := s.repo.OldestLeasedAge(now)
	if err != nil {
		return model.Alert{}, false, err
	}
	if !ok || age < leaseTimeoutThreshold {
		return model.Alert{}, false, nil
	}
	return model.Alert{
		Type:    model.AlertLeaseTimeout,
		Level:   model.AlertWarning,
		Title:   "Lease stuck in leased state",
		Message: fmt.Sprintf("oldest leased age=%s threshold=%s", age, leaseTimeoutThreshold),
	}, true, nil
}

// evalHighFailureRate raises when the lease failure ratio over the trailing
// window is at or above highFailureRateThreshold.
func (s *Services) evalHighFailureRate(now time.Time) (model.Alert, bool, error) {
	consumed, failed, err := s.repo.FailureRateSince(now.Add(-highFailureRateWindow))
	if err != nil {
		return model.Alert{}, false, err
	}
	total := consumed + failed
	if total == 0 {
		return model.Alert{}, false, nil
	}
	rate := float64(failed) / float64(total)
	if rate < highFailureRateThreshold {
		return model.Alert{}, false, nil
	}
	return model.Alert{
		Type:    model.AlertHighFailureRate,
		Level:   model.AlertCritical,
		Title:   "High lease failure rate",
		Message: fmt.Sprintf("failed=%d consumed=%d rate=%.2f window=%s", failed, consumed, rate, highFailureRateWindow),
	}, true, nil
}

// evalNoStockFrequent raises when the no_stock audit action has fired at
// least noStockFrequentThreshold times in the trailing 24h.
func (s *Services) evalNoStockFrequent(now time.Time) (model.Alert, bool, error) {
	n, err := s.repo.CountAuditActionSince("no_stock", now.Add(-noStockFrequentWindow))
	if err != nil {
		return model.Alert{}, false, err
	}
	if n < noStockFrequentThreshold {
		return model.Alert{}, false, nil
	}
	return model.Alert{
		Type:    model.AlertNoStockFrequent,
		Level:   model.AlertWarning,
		Title:   "Frequent no_stock production failures",
		Message: fmt.Sprintf("count=%d window=%s", n, noStockFrequentWindow),
	}, true, nil
}
