package jobs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OverlayEntry patches one named job's schedule at boot, without requiring
// a code change — the §6 SUFFIXCORE_JOBS_CONFIG_FILE path.
type OverlayEntry struct {
	Name            string `yaml:"name"`
	IntervalMinutes int    `yaml:"interval_minutes,omitempty"`
	CronExpr        string `yaml:"cron,omitempty"`
	Enabled         *bool  `yaml:"enabled,omitempty"`
}

// Overlay is the top-level YAML shape of the job-definition overlay file.
type Overlay struct {
	Jobs []OverlayEntry `yaml:"jobs"`
}

// LoadOverlay reads and parses a YAML job-overlay file. An empty path is a
// no-op returning a zero-value Overlay.
func LoadOverlay(path string) (Overlay, error) {
	if path == "" {
		return Overlay{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Overlay{}, fmt.Errorf("jobs: read overlay %s: %w", path, err)
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Overlay{}, fmt.Errorf("jobs: parse overlay %s: %w", path, err)
	}
	return o, nil
}

// Apply patches registered jobs' interval/cron/enabled fields from the
// overlay, by name. Jobs not named in the overlay are left untouched.
func (r *Registry) Apply(o Overlay) error {
	for _, entry := range o.Jobs {
		e, ok := r.jobs.Load(entry.Name)
		if !ok {
			continue
		}
		e.mu.Lock()
		if entry.IntervalMinutes > 0 {
			e.def.IntervalMinutes = entry.IntervalMinutes
		}
		if entry.CronExpr != "" {
			sched, err := r.parser.Parse(entry.CronExpr)
			if err != nil {
				e.mu.Unlock()
				return fmt.Errorf("jobs: overlay cron for %s: %w", entry.Name, err)
			}
			e.def.CronExpr = entry.CronExpr
			e.schedule = sched
		}
		if entry.Enabled != nil {
			e.enabled = *entry.Enabled
		}
		e.mu.Unlock()
	}
	return nil
}
