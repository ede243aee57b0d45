// Package jobs implements the Job Registry (spec.md §4.H): a process-local
// registry of named background jobs, each either driven by an internal
// jittered ticker or left to an external cron caller via ExecuteJob.
// Grounded on the teacher's internal/topology.SubscriptionScheduler
// (jittered runLoop + stopCh/wg Start/Stop shape) and its Range-based
// registry (here an xsync.Map keyed by job name instead of subscription id).
package jobs

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"

	"github.com/adrotate/suffixcore/internal/model"
)

const (
	historySize = 100
	historyTTL  = 24 * time.Hour

	// jitterFraction bounds how much of a job's own interval is added as
	// random jitter on top of the base interval, spreading out jobs that
	// share a period instead of firing them all in lockstep.
	jitterFraction = 0.1
)

// Handler is a job body. ctx is cancelled on Registry.Stop.
type Handler func(ctx context.Context) error

// Definition describes one registrable job (spec.md §4.H).
type Definition struct {
	Name            string
	Description     string
	IntervalMinutes int    // ignored if CronExpr is set
	CronExpr        string // optional external-cron-compatible expression (robfig/cron syntax)
	Enabled         bool
	Handler         Handler
}

// Info is the read-only view of a registered job's current state, the
// shape GET /api/v1/jobs returns.
type Info struct {
	Name            string
	Description     string
	IntervalMinutes int
	CronExpr        string
	Enabled         bool
	LastRun         *time.Time
	NextRun         *time.Time
}

type jobEntry struct {
	def Definition

	mu       sync.Mutex
	enabled  bool
	schedule cron.Schedule // non-nil if def.CronExpr parses
	lastRun  *time.Time
	nextRun  *time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Registry holds every named job and drives its internal ticker, matching
// spec.md §4.H: "production deployments may disable the ticker and rely on
// an external caller" — Start is optional, ExecuteJob always works.
type Registry struct {
	jobs    *xsync.Map[string, *jobEntry]
	history otter.Cache[string, []model.JobExecutionRecord]
	histMu  sync.Mutex

	parser cron.Parser
	seq    int64
}

// New builds an empty Registry.
func New() (*Registry, error) {
	cache, err := otter.MustBuilder[string, []model.JobExecutionRecord](256).
		Cost(func(_ string, records []model.JobExecutionRecord) uint32 { return uint32(len(records)) }).
		WithTTL(historyTTL).
		Build()
	if err != nil {
		return nil, fmt.Errorf("jobs: build history cache: %w", err)
	}
	return &Registry{
		jobs:    xsync.NewMap[string, *jobEntry](),
		history: cache,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}, nil
}

// Register adds (or replaces) a job definition. Must be called before Start.
func (r *Registry) Register(def Definition) error {
	entry := &jobEntry{def: def, enabled: def.Enabled, stopCh: make(chan struct{})}
	if def.CronExpr != "" {
		sched, err := r.parser.Parse(def.CronExpr)
		if err != nil {
			return fmt.Errorf("jobs: parse cron expr %q for %s: %w", def.CronExpr, def.Name, err)
		}
		entry.schedule = sched
	}
	r.jobs.Store(def.Name, entry)
	return nil
}

// Start launches one background goroutine per enabled job, each looping at
// its own jittered interval until Stop is called.
func (r *Registry) Start() {
	r.jobs.Range(func(name string, e *jobEntry) bool {
		e.mu.Lock()
		enabled := e.enabled
		e.mu.Unlock()
		if !enabled {
			return true
		}
		e.wg.Add(1)
		go func(e *jobEntry) {
			defer e.wg.Done()
			r.runLoop(e)
		}(e)
		return true
	})
}

// Stop signals every running job loop to exit and waits for them to finish.
func (r *Registry) Stop() {
	r.jobs.Range(func(_ string, e *jobEntry) bool {
		close(e.stopCh)
		return true
	})
	r.jobs.Range(func(_ string, e *jobEntry) bool {
		e.wg.Wait()
		return true
	})
}

func (r *Registry) runLoop(e *jobEntry) {
	for {
		d := e.nextDelay()
		timer := time.NewTimer(d)
		select {
		case <-e.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
		e.mu.Lock()
		enabled := e.enabled
		e.mu.Unlock()
		if !enabled {
			continue
		}
		_, _ = r.run(context.Background(), e)
	}
}

// nextDelay computes the wait until the job's next firing: a cron.Schedule
// if configured, otherwise IntervalMinutes plus up to jitterFraction of
// jitter (spec.md's internal ticker, grounded on the teacher's runLoop).
func (e *jobEntry) nextDelay() time.Duration {
	now := time.Now()
	if e.schedule != nil {
		return e.schedule.Next(now).Sub(now)
	}
	base := time.Duration(e.def.IntervalMinutes) * time.Minute
	if base <= 0 {
		base = time.Minute
	}
	span := int64(float64(base)*jitterFraction) + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return base
	}
	return base + time.Duration(n.Int64())
}

// ExecuteJob runs one job ad-hoc, regardless of its enabled flag or
// schedule — spec.md §4.H "executeJob(name) for ad-hoc invocation".
func (r *Registry) ExecuteJob(ctx context.Context, name string) (model.JobExecutionRecord, error) {
	e, ok := r.jobs.Load(name)
	if !ok {
		return model.JobExecutionRecord{}, fmt.Errorf("jobs: no job registered named %q", name)
	}
	return r.run(ctx, e)
}

func (r *Registry) run(ctx context.Context, e *jobEntry) (model.JobExecutionRecord, error) {
	started := time.Now()
	err := e.def.Handler(ctx)
	rec := model.JobExecutionRecord{
		JobName:   e.def.Name,
		StartedAt: started,
		Duration:  time.Since(started),
		Success:   err == nil,
	}
	if err != nil {
		rec.Error = err.Error()
		log.Printf("[jobs] %s failed after %s: %v", e.def.Name, rec.Duration, err)
	}

	e.mu.Lock()
	now := rec.StartedAt
	e.lastRun = &now
	next := now.Add(e.nextDelay())
	e.nextRun = &next
	e.mu.Unlock()

	r.pushHistory(e.def.Name, rec)
	return rec, err
}

// pushHistory appends rec to the job's capped ring buffer, trimming from
// the front once it exceeds historySize entries.
func (r *Registry) pushHistory(name string, rec model.JobExecutionRecord) {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	records, _ := r.history.Get(name)
	records = append(records, rec)
	if len(records) > historySize {
		records = records[len(records)-historySize:]
	}
	r.history.Set(name, records)
}

// History returns the capped execution history for one job, most recent
// last.
func (r *Registry) History(name string) []model.JobExecutionRecord {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	records, _ := r.history.Get(name)
	out := make([]model.JobExecutionRecord, len(records))
	copy(out, records)
	return out
}

// List returns every registered job's current Info, the shape behind
// GET /api/v1/jobs.
func (r *Registry) List() []Info {
	var out []Info
	r.jobs.Range(func(_ string, e *jobEntry) bool {
		e.mu.Lock()
		out = append(out, Info{
			Name:            e.def.Name,
			Description:     e.def.Description,
			IntervalMinutes: e.def.IntervalMinutes,
			CronExpr:        e.def.CronExpr,
			Enabled:         e.enabled,
			LastRun:         e.lastRun,
			NextRun:         e.nextRun,
		})
		e.mu.Unlock()
		return true
	})
	return out
}

// SetEnabled toggles a job's scheduling flag. Takes effect on its next
// internal-ticker cycle; a job that was disabled when Start ran has no
// ticker, so enabling it later does not schedule it. ExecuteJob always
// ignores this flag.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	e, ok := r.jobs.Load(name)
	if !ok {
		return fmt.Errorf("jobs: no job registered named %q", name)
	}
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
	return nil
}
