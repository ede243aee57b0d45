package config

import "time"

// RuntimeConfig holds hot-updatable global settings, persisted via the
// store and served/patched through the admin config surface (SPEC_FULL
// §4.K). Mirrors the reference's RuntimeConfig/atomic.Pointer pattern.
type RuntimeConfig struct {
	// Lease engine
	LeaseTTL        Duration `json:"lease_ttl"`
	SuffixTTL       Duration `json:"suffix_ttl"`
	CombinedCommit  bool     `json:"combined_commit"` // §4.E: true = lease+consume in one transaction

	// Stock producer
	ProduceBatchSize    int `json:"produce_batch_size"`
	LowWatermark        int `json:"low_watermark"`
	StockConcurrency    int `json:"stock_concurrency"`
	CampaignConcurrency int `json:"campaign_concurrency"`
	AllowMockSuffix     bool `json:"allow_mock_suffix"`

	// Dynamic watermark
	WatermarkHistoryWindow Duration `json:"watermark_history_window"`
	WatermarkSafetyFactor  float64  `json:"watermark_safety_factor"`
	WatermarkDefault       int      `json:"watermark_default"`
	WatermarkMin           int      `json:"watermark_min"`
	WatermarkMax           int      `json:"watermark_max"`

	// Batch limits
	MaxBatchSize int `json:"max_batch_size"`

	// Alerting
	AlertWebhookURL string `json:"alert_webhook_url"`

	// Job intervals (minutes, matching §4.H's default jobs)
	StockReplenishIntervalMinutes  int `json:"stock_replenish_interval_minutes"`
	MonitoringAlertIntervalMinutes int `json:"monitoring_alert_interval_minutes"`
	ClickTaskExecuteIntervalMinutes int `json:"click_task_execute_interval_minutes"`
}

// NewDefaultRuntimeConfig returns a RuntimeConfig populated with the
// defaults enumerated in spec.md §6.
func NewDefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		LeaseTTL:       Duration(15 * time.Minute),
		SuffixTTL:      Duration(48 * time.Hour),
		CombinedCommit: true,

		ProduceBatchSize:    10,
		LowWatermark:        3,
		StockConcurrency:    5,
		CampaignConcurrency: 3,
		AllowMockSuffix:     false,

		WatermarkHistoryWindow: Duration(24 * time.Hour),
		WatermarkSafetyFactor:  2,
		WatermarkDefault:       5,
		WatermarkMin:           3,
		WatermarkMax:           20,

		MaxBatchSize: 500,

		AlertWebhookURL: "",

		StockReplenishIntervalMinutes:   10,
		MonitoringAlertIntervalMinutes:  10,
		ClickTaskExecuteIntervalMinutes: 1,
	}
}

// Patch applies the non-nil fields of a partial update. Used by the
// PATCH /api/v1/system/config handler. A nil field in patch (booleans
// included) leaves the current value unchanged.
func (c *RuntimeConfig) Patch(patch RuntimeConfigPatch) {
	if patch.LeaseTTL != nil {
		c.LeaseTTL = *patch.LeaseTTL
	}
	if patch.SuffixTTL != nil {
		c.SuffixTTL = *patch.SuffixTTL
	}
	if patch.CombinedCommit != nil {
		c.CombinedCommit = *patch.CombinedCommit
	}
	if patch.ProduceBatchSize != nil {
		c.ProduceBatchSize = *patch.ProduceBatchSize
	}
	if patch.LowWatermark != nil {
		c.LowWatermark = *patch.LowWatermark
	}
	if patch.StockConcurrency != nil {
		c.StockConcurrency = *patch.StockConcurrency
	}
	if patch.CampaignConcurrency != nil {
		c.CampaignConcurrency = *patch.CampaignConcurrency
	}
	if patch.AllowMockSuffix != nil {
		c.AllowMockSuffix = *patch.AllowMockSuffix
	}
	if patch.AlertWebhookURL != nil {
		c.AlertWebhookURL = *patch.AlertWebhookURL
	}
}

// RuntimeConfigPatch is the partial-update DTO for PATCH /system/config.
type RuntimeConfigPatch struct {
	LeaseTTL            *Duration `json:"lease_ttl,omitempty"`
	SuffixTTL           *Duration `json:"suffix_ttl,omitempty"`
	CombinedCommit      *bool     `json:"combined_commit,omitempty"`
	ProduceBatchSize    *int      `json:"produce_batch_size,omitempty"`
	LowWatermark        *int      `json:"low_watermark,omitempty"`
	StockConcurrency    *int      `json:"stock_concurrency,omitempty"`
	CampaignConcurrency *int      `json:"campaign_concurrency,omitempty"`
	AllowMockSuffix     *bool     `json:"allow_mock_suffix,omitempty"`
	AlertWebhookURL     *string   `json:"alert_webhook_url,omitempty"`
}
