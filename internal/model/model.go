// Package model defines the relational entities shared across the store
// and service layers (see spec.md §3).
package model

import "time"

// CampaignStatus enumerates Campaign lifecycle states.
type CampaignStatus string

const (
	CampaignActive   CampaignStatus = "active"
	CampaignInactive CampaignStatus = "inactive"
)

// Campaign is the (userId, campaignId) root entity. Never hard-deleted.
type Campaign struct {
	ID            int64
	UserID        string
	CampaignID    string
	Name          string
	CountryCode   string // ISO-2, uppercase
	FinalURL      string // root-domain form
	ExternalCID   string
	ExternalMCCID string
	Status        CampaignStatus
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Campaign) IsDeleted() bool { return c.DeletedAt != nil }

// AffiliateLink is owned 1:1-active by a Campaign.
type AffiliateLink struct {
	ID         int64
	UserID     string
	CampaignID string
	TargetURL  string
	Enabled    bool
	Priority   int
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (a *AffiliateLink) IsDeleted() bool { return a.DeletedAt != nil }

// CampaignClickState tracks applied vs. observed click counters.
type CampaignClickState struct {
	ID                 int64
	UserID             string
	CampaignID         string
	LastAppliedClicks  int64
	LastObservedClicks int64
	LastObservedAt     time.Time
	UpdatedAt          time.Time
}

// StockItemStatus enumerates SuffixStockItem lifecycle states.
type StockItemStatus string

const (
	StockAvailable StockItemStatus = "available"
	StockLeased    StockItemStatus = "leased"
	StockConsumed  StockItemStatus = "consumed"
	StockExpired   StockItemStatus = "expired"
	StockInvalid   StockItemStatus = "invalid"
)

// SuffixStockItem is one produced suffix awaiting (or past) allocation.
type SuffixStockItem struct {
	ID              int64
	UserID          string
	CampaignID      string
	Suffix          string
	Status          StockItemStatus
	ExitIP          string
	SourceLinkID    int64
	LeasedAt        *time.Time
	ConsumedAt      *time.Time
	ExpiredAt       *time.Time
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LeaseStatus enumerates SuffixLease lifecycle states.
type LeaseStatus string

const (
	LeaseLeased   LeaseStatus = "leased"
	LeaseConsumed LeaseStatus = "consumed"
	LeaseFailed   LeaseStatus = "failed"
	LeaseExpired  LeaseStatus = "expired"
)

// SuffixLease is a single rotation attempt.
type SuffixLease struct {
	ID              int64
	UserID          string
	CampaignID      string
	StockItemID     int64
	IdempotencyKey  string
	NowClicks       int64
	WindowStartEpoch int64
	Status          LeaseStatus
	Applied         bool
	ErrorMessage    string
	LeasedAt        time.Time
	AckedAt         *time.Time
	ExpiredAt       *time.Time
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProxyProvider is one upstream SOCKS5 proxy credential template.
type ProxyProvider struct {
	ID               int64
	Host             string
	Port             int
	Priority         int // lower wins
	UsernameTemplate string
	Password         string
	Enabled          bool
	AssignedUserIDs  []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProxyExitIPUsage records a (userId, campaignId, exitIp) dedup window.
type ProxyExitIPUsage struct {
	ID         int64
	UserID     string
	CampaignID string
	ExitIP     string
	UsedAt     time.Time
	ExpiresAt  time.Time
}

// ClickTaskStatus enumerates ClickTask lifecycle states.
type ClickTaskStatus string

const (
	ClickTaskRunning   ClickTaskStatus = "running"
	ClickTaskCompleted ClickTaskStatus = "completed"
	ClickTaskCancelled ClickTaskStatus = "cancelled"
	ClickTaskFailed    ClickTaskStatus = "failed"
)

// ClickTask owns many ClickTaskItems — a queued rotation-flood.
type ClickTask struct {
	ID              int64
	UserID          string
	CampaignID      string
	TargetClicks    int
	CompletedClicks int
	FailedClicks    int
	Status          ClickTaskStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ClickTaskItemStatus enumerates ClickTaskItem lifecycle states.
type ClickTaskItemStatus string

const (
	ClickItemPending   ClickTaskItemStatus = "pending"
	ClickItemExecuting ClickTaskItemStatus = "executing"
	ClickItemSuccess   ClickTaskItemStatus = "success"
	ClickItemFailed    ClickTaskItemStatus = "failed"
	ClickItemCancelled ClickTaskItemStatus = "cancelled"
)

// ClickTaskItem is a single scheduled click execution within a ClickTask.
type ClickTaskItem struct {
	ID            int64
	TaskID        int64
	ScheduledAt   time.Time
	Status        ClickTaskItemStatus
	ExitIP        string
	ErrorMessage  string
	DurationMs    int64
	ExecutedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AlertType enumerates recovery-service alert categories.
type AlertType string

const (
	AlertLowStock         AlertType = "low_stock"
	AlertLeaseTimeout     AlertType = "lease_timeout"
	AlertHighFailureRate  AlertType = "high_failure_rate"
	AlertNoStockFrequent  AlertType = "no_stock_frequent"
	AlertSystemHealth     AlertType = "system_health"
)

// AlertLevel enumerates severity.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is a persisted recovery-service finding.
type Alert struct {
	ID           int64
	Type         AlertType
	Level        AlertLevel
	Title        string
	Message      string
	MetadataJSON string
	Acknowledged bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductionAuditLogEntry records one stock-producer run (§3.1 supplement).
type ProductionAuditLogEntry struct {
	ID            int64
	UserID        string
	CampaignID    string
	Action        string // "produced", "no_stock", "skipped", "failed"
	Requested     int
	Produced      int
	Failed        int
	TriggerReason string // scheduled | lease_triggered | forced | sweep
	StartedAt     time.Time
	FinishedAt    time.Time
}

// ApiKey maps a hashed Bearer token to the user it authenticates (spec.md
// §6's "Bearer token whose SHA-256 must match a stored hash"). The
// session-login/bcrypt account layer that issues these is out of scope
// (spec.md §1) — this is just the verification-side row.
type ApiKey struct {
	ID        int64
	UserID    string
	KeyHash   string
	Label     string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobExecutionRecord is one ring-buffer-backed history entry for a Job
// Registry invocation (spec.md §4.H "capped 100-entry ring-buffer
// history"). Not persisted — process-local only.
type JobExecutionRecord struct {
	JobName   string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	Error     string
}

// CampaignMeta is the lazily-supplied metadata attached to a lease request
// (spec.md §6's `meta` field).
type CampaignMeta struct {
	CampaignName string
	Country      string
	FinalURL     string
	CID          string
	MCCID        string
}
