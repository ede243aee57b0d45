package clickscheduler

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/http"
	"time"

	"github.com/adrotate/suffixcore/internal/model"
	"github.com/adrotate/suffixcore/internal/proxyselect"
	"github.com/adrotate/suffixcore/internal/tracker"
)

// Repo is the subset of internal/store the executor needs.
type Repo interface {
	DueClickItems(now time.Time, limit int) ([]model.ClickTaskItem, error)
	MarkItemExecuting(itemID int64, now time.Time) error
	CompleteItem(itemID int64, success bool, exitIP, errMsg string, durationMs int64, now time.Time) error
	FinalizeTaskIfDone(taskID int64, now time.Time) error
	GetClickTask(taskID int64) (*model.ClickTask, error)
	GetCampaign(userID, campaignID string) (*model.Campaign, error)
	EffectiveAffiliateLink(userID, campaignID string) (*model.AffiliateLink, error)
}

const (
	tickLimit       = 20
	execMaxRedirects = 15
	execRequestTimeout = 25 * time.Second
	execTotalTimeout   = 120 * time.Second
	execRetryCount     = 1
	minPaceDelay = 3 * time.Second
	maxPaceDelay = 9 * time.Second
)

// Executor runs the periodic execution tick (spec.md §4.F "Execution tick").
type Executor struct {
	repo     Repo
	selector *proxyselect.Selector
}

// New builds an Executor.
func New(repo Repo, selector *proxyselect.Selector) *Executor {
	return &Executor{repo: repo, selector: selector}
}

// Tick fetches and executes up to tickLimit due items, grouped by task, and
// finalizes any task left with no pending/executing items (spec.md §4.F
// steps 1-4).
func (e *Executor) Tick(ctx context.Context) error {
	items, err := e.repo.DueClickItems(time.Now(), tickLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	byTask := make(map[int64][]model.ClickTaskItem)
	var taskOrder []int64
	for _, it := range items {
		if _, ok := byTask[it.TaskID]; !ok {
			taskOrder = append(taskOrder, it.TaskID)
		}
		byTask[it.TaskID] = append(byTask[it.TaskID], it)
	}

	touched := make(map[int64]bool)
	for _, taskID := range taskOrder {
		task, err := e.repo.GetClickTask(taskID)
		if err != nil {
			continue
		}
		for i, item := range byTask[taskID] {
			e.executeItem(ctx, *task, item)
			touched[taskID] = true
			if i < len(byTask[taskID])-1 {
				pace(ctx)
			}
		}
	}

	for taskID := range touched {
		_ = e.repo.FinalizeTaskIfDone(taskID, time.Now())
	}
	return nil
}

// executeItem runs one click-task item serially: mark executing, pick a
// fresh UA/Referer, acquire a proxy, trace, and record the result (spec.md
// §4.F step 3). Each call to selector.Select is itself a fresh pick — the
// 24h dedup ledger it consults is what gives "reset the tried-set per item"
// its effect, without needing a separate stateful iterator object.
func (e *Executor) executeItem(ctx context.Context, task model.ClickTask, item model.ClickTaskItem) {
	started := time.Now()
	if err := e.repo.MarkItemExecuting(item.ID, started); err != nil {
		return
	}

	campaign, err := e.repo.GetCampaign(task.UserID, task.CampaignID)
	if err != nil {
		e.complete(item.ID, false, "", err.Error(), started)
		return
	}
	link, err := e.repo.EffectiveAffiliateLink(task.UserID, task.CampaignID)
	if err != nil {
		e.complete(item.ID, false, "", err.Error(), started)
		return
	}

	ua := randomPick(userAgents)
	referer := randomPick(referers)

	sel, err := e.selector.Select(ctx, task.UserID, campaign.CountryCode, task.CampaignID)
	if err != nil {
		e.complete(item.ID, false, "", err.Error(), started)
		return
	}

	result := tracker.Trace(ctx, tracker.Request{
		URL:            link.TargetURL,
		Proxy:          httpRoundTripper{sel.Transport},
		TargetDomain:   campaign.FinalURL,
		InitialReferer: referer,
		MaxRedirects:   execMaxRedirects,
		RequestTimeout: execRequestTimeout,
		TotalTimeout:   execTotalTimeout,
		RetryCount:     execRetryCount,
		UserAgent:      ua,
	})

	if !result.Success {
		e.complete(item.ID, false, sel.ExitIP, result.ErrorMessage, started)
		return
	}

	if err := e.selector.RecordUsage(task.UserID, task.CampaignID, sel, time.Now()); err != nil {
		e.complete(item.ID, false, sel.ExitIP, err.Error(), started)
		return
	}
	e.complete(item.ID, true, sel.ExitIP, "", started)
}

func (e *Executor) complete(itemID int64, success bool, exitIP, errMsg string, started time.Time) {
	durationMs := time.Since(started).Milliseconds()
	_ = e.repo.CompleteItem(itemID, success, exitIP, errMsg, durationMs, time.Now())
}

// pace sleeps a uniformly random 3-9s ("human pacing", spec.md §4.F step 3),
// returning early if ctx is cancelled.
func pace(ctx context.Context) {
	d := minPaceDelay + randomDuration(maxPaceDelay-minPaceDelay)
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func randomDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

func randomPick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return pool[0]
	}
	return pool[n.Int64()]
}

// httpRoundTripper adapts *http.Transport to tracker.Dialer, mirroring
// internal/suffixgen's identical seam.
type httpRoundTripper struct{ t *http.Transport }

func (r httpRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return r.t.RoundTrip(req)
}
