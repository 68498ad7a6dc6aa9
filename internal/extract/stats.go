package extract

import (
	"errors"
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp time.Time
	micros    int64
	failure   string
}

// StatsSnapshot aggregates the extraction samples inside the window.
type StatsSnapshot struct {
	Count    int            `json:"count"`
	Failures map[string]int `json:"failures"`
	MinUs    int64          `json:"min_us"`
	MaxUs    int64          `json:"max_us"`
	AvgUs    float64        `json:"avg_us"`
	P50Us    float64        `json:"p50_us"`
	P95Us    float64        `json:"p95_us"`
	P99Us    float64        `json:"p99_us"`
}

// Stats tracks recent extraction latencies and failures within a rolling
// window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

// Record adds one extraction outcome. err is the error Extract returned, if any.
func (s *Stats) Record(d time.Duration, err error) {
	micros := d.Microseconds()
	if micros < 0 {
		micros = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{
		timestamp: now,
		micros:    micros,
		failure:   failureReason(err),
	})
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSpan):
		return "invalid_span"
	case errors.Is(err, ErrMissingPage):
		return "missing_page"
	case errors.Is(err, ErrInvalidPageRange):
		return "invalid_page_range"
	default:
		return "other"
	}
}

// Snapshot reports latency percentiles over successful extractions and
// failure counts by reason.
func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	snap := StatsSnapshot{Count: len(s.samples), Failures: map[string]int{}}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		if sm.failure != "" {
			snap.Failures[sm.failure]++
			continue
		}
		values = append(values, sm.micros)
		sum += sm.micros
	}
	if len(values) == 0 {
		return snap
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.MinUs = values[0]
	snap.MaxUs = values[len(values)-1]
	snap.AvgUs = float64(sum) / float64(len(values))
	snap.P50Us = percentile(values, 50)
	snap.P95Us = percentile(values, 95)
	snap.P99Us = percentile(values, 99)
	return snap
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	writeIdx := 0
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			s.samples[writeIdx] = sm
			writeIdx++
		}
	}
	s.samples = s.samples[:writeIdx]
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[upper])
	return lo + ((hi - lo) * weight)
}
