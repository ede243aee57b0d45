// Package clickscheduler implements the Click Scheduler (spec.md §4.F):
// generate a diurnally-weighted schedule of click timestamps for a task, and
// execute due items periodically through the tracker/proxy selector.
package clickscheduler

import (
	"crypto/rand"
	"math"
	"math/big"
	"sort"
	"time"
)

// hourWeights is the fixed 24-entry diurnal-curve table (spec.md §4.F):
// peaks 18-20, trough 02-04.
var hourWeights = [24]float64{
	0.1, 0.05, 0.02, 0.02, 0.03, 0.05, 0.15, 0.4,
	0.8, 1.2, 1.5, 1.6, 1.3, 1.4, 1.6, 1.7,
	1.8, 1.9, 2.0, 2.2, 2.0, 1.6, 1.0, 0.5,
}

// GenerateSchedule implements spec.md §4.F's schedule-generation algorithm
// for n clicks starting at t. If t is at or past today's end of day, all n
// clicks are distributed uniformly across the next 60 seconds instead.
func GenerateSchedule(t time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}

	dayEnd := endOfDay(t)
	if !t.Before(dayEnd) {
		return uniformBurst(t, n, 60*time.Second)
	}

	startHour := t.Hour()
	type slot struct {
		start, end time.Time
		weight     float64
	}
	var slots []slot
	for h := startHour; h <= 23; h++ {
		slotStart := time.Date(t.Year(), t.Month(), t.Day(), h, 0, 0, 0, t.Location())
		slotEnd := slotStart.Add(time.Hour)
		if h == startHour {
			slotStart = t
		}
		if slotEnd.After(dayEnd) {
			slotEnd = dayEnd
		}
		availableFraction := slotEnd.Sub(slotStart).Seconds() / time.Hour.Seconds()
		if availableFraction <= 0 {
			continue
		}
		slots = append(slots, slot{start: slotStart, end: slotEnd, weight: hourWeights[h] * availableFraction})
	}
	if len(slots) == 0 {
		return uniformBurst(t, n, 60*time.Second)
	}

	totalWeight := 0.0
	weights := make([]float64, len(slots))
	for i, s := range slots {
		totalWeight += s.weight
		weights[i] = s.weight
	}
	counts := allocateCounts(weights, totalWeight, n)

	var out []time.Time
	for i, s := range slots {
		for j := 0; j < counts[i]; j++ {
			out = append(out, uniformWithin(s.start, s.end))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// allocateCounts distributes n across weights using largest-remainder
// rounding, so the result always sums to exactly n regardless of how many
// individual shares would otherwise round up under plain math.Round (a
// same-slot residual clamp doesn't hold that invariant once enough slots
// round up to push the running total past n).
func allocateCounts(weights []float64, totalWeight float64, n int) []int {
	counts := make([]int, len(weights))
	type remainder struct {
		idx   int
		value float64
	}
	rems := make([]remainder, len(weights))
	sumFloors := 0
	for i, w := range weights {
		share := 0.0
		if totalWeight > 0 {
			share = w / totalWeight * float64(n)
		}
		floorShare := math.Floor(share)
		counts[i] = int(floorShare)
		rems[i] = remainder{idx: i, value: share - floorShare}
		sumFloors += counts[i]
	}
	remaining := n - sumFloors
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].value > rems[b].value })
	for i := 0; i < remaining && i < len(rems); i++ {
		counts[rems[i].idx]++
	}
	return counts
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, t.Location())
}

func uniformBurst(t time.Time, n int, window time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = uniformWithin(t, t.Add(window))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func uniformWithin(start, end time.Time) time.Time {
	span := end.Sub(start)
	if span <= 0 {
		return start
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)))
	if err != nil {
		return start
	}
	return start.Add(time.Duration(n.Int64()))
}
