// Package lease implements the Lease Engine (spec.md §4.E): idempotent
// per-request suffix allocation, click-monotonicity enforcement, ack
// recovery, and lazy campaign-metadata upsert.
package lease

import (
	"context"
	"time"

	"github.com/adrotate/suffixcore/internal/apierr"
	"github.com/adrotate/suffixcore/internal/config"
	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/store"
)

// Action mirrors spec.md §6's lease-response `action` field.
type Action string

const (
	ActionApply Action = "APPLY"
	ActionNoop  Action = "NOOP"
)

// Request is lease()'s input contract (spec.md §4.E).
type Request struct {
	CampaignID       string
	NowClicks        int64
	ObservedAt       time.Time
	WindowStartEpoch int64
	IdempotencyKey   string
	Meta             *model.CampaignMeta
}

// Result is lease()'s output contract.
type Result struct {
	Action         Action
	LeaseID        int64
	FinalURLSuffix string
	Reason         string
}

// AckRequest is ack()'s input contract.
type AckRequest struct {
	LeaseID      int64
	CampaignID   string
	Applied      bool
	AppliedAt    time.Time
	ErrorMessage string
}

// AckResult is ack()'s output contract — idempotent acks on an already
// terminal lease report that lease's PreviousStatus instead of re-applying.
type AckResult struct {
	PreviousStatus model.LeaseStatus
	Idempotent     bool
}

// Engine runs lease()/ack() against a concrete *store.Store — the atomic
// commit step spans several repository calls inside one *sql.Tx, which only
// makes sense against the real store, not an interface (mirrors the
// teacher's own service layer holding a concrete *state.StateEngine rather
// than an interface for anything transactional).
type Engine struct {
	store *store.Store
	cfg   func() *config.RuntimeConfig

	// replenish is the fire-and-forget stock-producer trigger (spec.md §4.E
	// steps 4 and 6). Left nil-safe for tests that don't care about it.
	replenish func(userID, campaignID string)
}

// New builds an Engine.
func New(st *store.Store, cfg func() *config.RuntimeConfig, replenish func(userID, campaignID string)) *Engine {
	return &Engine{store: st, cfg: cfg, replenish: replenish}
}

func (e *Engine) trigger(userID, campaignID string) {
	if e.replenish == nil {
		return
	}
	go e.replenish(userID, campaignID)
}

// Lease runs the full lease() algorithm (spec.md §4.E steps 1-7).
func (e *Engine) Lease(ctx context.Context, userID string, req Request) (*Result, error) {
	// Step 1: idempotency short-circuit.
	existing, err := e.store.GetLeaseByIdempotencyKey(userID, req.IdempotencyKey)
	if err == nil {
		return &Result{Action: ActionApply, LeaseID: existing.ID, FinalURLSuffix: existing.Suffix}, nil
	}
	if err != store.ErrNotFound {
		return nil, apierr.Wrap(apierr.InternalError, "idempotency lookup", err)
	}

	// Step 2: campaign upsert / PENDING_IMPORT.
	campaign, err := e.upsertCampaign(userID, req.CampaignID, req.Meta)
	if err != nil {
		return nil, err
	}

	// Step 3: click-state transition. lastApplied is the counter value the
	// state row carried into this decision (0 on first-ever observation or
	// on a same-day-reset), compared against the incoming NowClicks to
	// decide whether a rotation is even warranted.
	lastApplied, err := e.transitionClickState(userID, req.CampaignID, req.NowClicks, req.ObservedAt)
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, "click-state transition", err)
	}
	if req.NowClicks <= lastApplied {
		return &Result{Action: ActionNoop, Reason: "nowClicks has not advanced past the last applied click count"}, nil
	}

	// Step 4: allocation.
	now := time.Now()
	stockItem, err := e.store.AllocateOldestAvailable(userID, req.CampaignID, now)
	if err == store.ErrNotFound {
		e.trigger(userID, req.CampaignID)
		return nil, apierr.New(apierr.NoStock, "no available stock for campaign")
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, "allocate stock item", err)
	}

	// Step 5: atomic commit.
	leaseID, err := e.commit(userID, campaign, stockItem, req, now)
	if err != nil {
		return nil, err
	}

	// Step 6: second fire-and-forget replenish trigger.
	e.trigger(userID, req.CampaignID)

	// Step 7.
	return &Result{Action: ActionApply, LeaseID: leaseID, FinalURLSuffix: stockItem.Suffix}, nil
}

func (e *Engine) upsertCampaign(userID, campaignID string, meta *model.CampaignMeta) (*model.Campaign, error) {
	if meta != nil {
		c, _, err := e.store.UpsertCampaignMeta(userID, campaignID, *meta, time.Now())
		if err != nil {
			return nil, apierr.Wrap(apierr.InternalError, "upsert campaign", err)
		}
		return c, nil
	}
	c, err := e.store.GetCampaign(userID, campaignID)
	if err == store.ErrNotFound {
		return nil, apierr.New(apierr.PendingImport, "campaign metadata not yet known")
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, "get campaign", err)
	}
	return c, nil
}

// transitionClickState implements spec.md §4.E step 3's calendar-date
// comparison: a new day with a clicks counter lower than what was already
// applied means the advertiser's own counter reset, so ours must too. It
// returns the lastAppliedClicks value in effect for this decision — 0 when
// the state row was just created or just reset on a new day, else whatever
// was already stored — so the caller can enforce click monotonicity before
// allocating a suffix.
func (e *Engine) transitionClickState(userID, campaignID string, nowClicks int64, observedAt time.Time) (int64, error) {
	now := time.Now()
	state, err := e.store.GetClickState(userID, campaignID)
	if err == store.ErrNotFound {
		return 0, e.store.CreateClickState(userID, campaignID, nowClicks, observedAt, now)
	}
	if err != nil {
		return 0, err
	}

	newDay := !sameCalendarDate(state.LastObservedAt, observedAt)
	if newDay && nowClicks < state.LastAppliedClicks {
		return 0, e.store.ResetDailyApplied(userID, campaignID, nowClicks, observedAt, now)
	}
	return state.LastAppliedClicks, e.store.RefreshObservation(userID, campaignID, nowClicks, observedAt, now)
}

func sameCalendarDate(a, b time.Time) bool {
	a, b = a.Local(), b.Local()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// commit performs spec.md §4.E step 5's single transaction: insert the
// lease, flip the stock item to consumed, and bump lastAppliedClicks, all
// atomically. The CombinedCommit policy flag (spec.md §4.E's "switchable
// policy") chooses between inserting the lease already consumed/applied, or
// leaving it `leased` pending an explicit ack.
func (e *Engine) commit(userID string, campaign *model.Campaign, stockItem *model.SuffixStockItem, req Request, now time.Time) (int64, error) {
	tx, err := e.store.BeginTx()
	if err != nil {
		return 0, apierr.Wrap(apierr.InternalError, "begin transaction", err)
	}
	defer tx.Rollback()

	l := model.SuffixLease{
		UserID:           userID,
		CampaignID:       req.CampaignID,
		StockItemID:      stockItem.ID,
		IdempotencyKey:   req.IdempotencyKey,
		NowClicks:        req.NowClicks,
		WindowStartEpoch: req.WindowStartEpoch,
	}

	combined := e.cfg().CombinedCommit
	var leaseID int64
	if combined {
		leaseID, err = store.InsertLeaseConsumedTx(tx, l, now)
	} else {
		leaseID, err = store.InsertLeaseLeasedTx(tx, l, now)
	}
	if err == store.ErrConflict {
		// Concurrent duplicate idempotency key raced us here; the caller
		// should re-fetch via GetLeaseByIdempotencyKey rather than retry.
		return 0, apierr.New(apierr.Conflict, "duplicate idempotency key")
	}
	if err != nil {
		return 0, apierr.Wrap(apierr.InternalError, "insert lease", err)
	}

	if combined {
		if err := store.MarkStockConsumedTx(tx, stockItem.ID, now); err != nil {
			return 0, apierr.Wrap(apierr.InternalError, "mark stock consumed", err)
		}
		if err := store.BumpAppliedClicksTx(tx, userID, req.CampaignID, req.NowClicks, now); err != nil {
			return 0, apierr.Wrap(apierr.InternalError, "bump applied clicks", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apierr.Wrap(apierr.InternalError, "commit lease transaction", err)
	}
	return leaseID, nil
}

// Ack runs the ack() algorithm (spec.md §4.E "ack(userId, req)").
func (e *Engine) Ack(ctx context.Context, userID string, req AckRequest) (*AckResult, error) {
	l, err := e.store.GetLease(req.LeaseID, userID, req.CampaignID)
	if err == store.ErrNotFound {
		return nil, apierr.New(apierr.NotFound, "lease not found")
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, "get lease", err)
	}

	if l.Status == model.LeaseConsumed || l.Status == model.LeaseFailed {
		return &AckResult{PreviousStatus: l.Status, Idempotent: true}, nil
	}

	now := time.Now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, "begin transaction", err)
	}
	defer tx.Rollback()

	if req.Applied {
		if err := store.MarkLeaseConsumedTx(tx, l.ID, now); err != nil {
			return nil, apierr.Wrap(apierr.InternalError, "mark lease consumed", err)
		}
		if err := store.MarkStockConsumedTx(tx, l.StockItemID, now); err != nil {
			return nil, apierr.Wrap(apierr.InternalError, "mark stock consumed", err)
		}
		if err := store.BumpAppliedClicksTx(tx, userID, req.CampaignID, l.NowClicks, now); err != nil {
			return nil, apierr.Wrap(apierr.InternalError, "bump applied clicks", err)
		}
	} else {
		if err := store.MarkLeaseFailedTx(tx, l.ID, req.ErrorMessage, now); err != nil {
			return nil, apierr.Wrap(apierr.InternalError, "mark lease failed", err)
		}
		if err := store.RecycleStockItemTx(tx, l.StockItemID, now); err != nil {
			return nil, apierr.Wrap(apierr.InternalError, "recycle stock item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Wrap(apierr.InternalError, "commit ack transaction", err)
	}
	return &AckResult{PreviousStatus: l.Status}, nil
}

// BatchLeaseItem pairs one lease Request with its own result slot.
type BatchLeaseItem struct {
	Request Request
	Result  *Result
	Err     error
}

// LeaseBatch fans lease() out under a bounded worker pool (spec.md §4.E
// "Batch forms": "each sub-result is independent, and partial failure does
// not poison siblings"), capped at cfg.MaxBatchSize.
func (e *Engine) LeaseBatch(ctx context.Context, userID string, reqs []Request) []BatchLeaseItem {
	items := make([]BatchLeaseItem, len(reqs))
	max := e.cfg().MaxBatchSize
	if max <= 0 {
		max = 500
	}
	if len(items) > max {
		items = items[:max]
	}
	runBounded(len(items), max, func(i int) {
		res, err := e.Lease(ctx, userID, reqs[i])
		items[i] = BatchLeaseItem{Request: reqs[i], Result: res, Err: err}
	})
	return items
}

// BatchAckItem pairs one ack AckRequest with its own result slot.
type BatchAckItem struct {
	Request AckRequest
	Result  *AckResult
	Err     error
}

// AckBatch is LeaseBatch's counterpart for Ack, with the same cap.
func (e *Engine) AckBatch(ctx context.Context, userID string, reqs []AckRequest) []BatchAckItem {
	items := make([]BatchAckItem, len(reqs))
	max := e.cfg().MaxBatchSize
	if max <= 0 {
		max = 500
	}
	if len(items) > max {
		items = items[:max]
	}
	runBounded(len(items), max, func(i int) {
		res, err := e.Ack(ctx, userID, reqs[i])
		items[i] = BatchAckItem{Request: reqs[i], Result: res, Err: err}
	})
	return items
}
