// Package monitor keeps a rolling window of delivery outcomes and derives
// an operator-facing health signal from it. It holds recent deliveries in a
// bounded ring buffer, so memory stays flat no matter how long the process
// runs.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/notify"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/telemetry"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// HealthLevel orders the service health states.
type HealthLevel int

// Health states, best to worst.
const (
	Healthy HealthLevel = iota
	Degraded
	Unhealthy
	Critical
)

// String returns the wire form of the level.
func (l HealthLevel) String() string {
	switch l {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "critical"
	}
}

// Delivery is one processed webhook outcome fed to the monitor.
type Delivery struct {
	EventID   string
	Platform  webhook.Platform
	SourceIP  string
	Success   bool
	ErrorKind string
	Latency   time.Duration
	At        time.Time
}

// Snapshot is the aggregate view served by the health endpoint.
type Snapshot struct {
	Level        HealthLevel `json:"-"`
	Status       string      `json:"status"`
	Total        int64       `json:"total_deliveries"`
	Succeeded    int64       `json:"succeeded"`
	Failed       int64       `json:"failed"`
	ErrorRate    float64     `json:"error_rate"`
	AvgLatencyMs float64     `json:"avg_latency_ms"`
	MinLatencyMs float64     `json:"min_latency_ms"`
	MaxLatencyMs float64     `json:"max_latency_ms"`
	Issues       []string    `json:"issues,omitempty"`
}

// Analytics summarizes the recent buffer for the reporting surface.
type Analytics struct {
	WindowMinutes int            `json:"window_minutes"`
	Total         int            `json:"total"`
	SuccessRate   float64        `json:"success_rate"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	Hourly        []HourlyBucket `json:"hourly"`
	TopErrors     []CountedLabel `json:"top_errors,omitempty"`
	TopSourceIPs  []CountedLabel `json:"top_source_ips,omitempty"`
}

// HourlyBucket is one hour of delivery volume.
type HourlyBucket struct {
	Hour      time.Time `json:"hour"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
}

// CountedLabel pairs a label with its occurrence count.
type CountedLabel struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Monitor records deliveries, serves health snapshots, and raises alerts
// when the error rate or latency crosses its thresholds.
type Monitor struct {
	cfg      config.MonitorConfig
	clock    webhook.Clock
	logger   *zap.Logger
	notifier notify.Notifier

	mu       sync.Mutex
	ring     []Delivery
	next     int
	total    int64
	success  int64
	failure  int64
	latSum   time.Duration
	latMin   time.Duration
	latMax   time.Duration
	lastFail time.Time

	// alert dedup state, keyed by type + severity
	lastAlert map[string]time.Time
}

const (
	alertDedupWindow   = 24 * time.Hour
	recentFailureGrace = 5 * time.Minute
)

// New constructs a Monitor. The notifier may be nil when alert fan-out is
// not configured.
func New(cfg config.MonitorConfig, clock webhook.Clock, notifier notify.Notifier, logger *zap.Logger) *Monitor {
	size := cfg.BufferSize
	if size <= 0 {
		size = 1000
	}
	cfg.BufferSize = size
	return &Monitor{
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		notifier:  notifier,
		ring:      make([]Delivery, 0, size),
		lastAlert: make(map[string]time.Time),
	}
}

// Record ingests one delivery outcome. The oldest buffered delivery is
// evicted once the ring is full.
func (m *Monitor) Record(ctx context.Context, d Delivery) {
	m.mu.Lock()
	if d.At.IsZero() {
		d.At = m.clock.Now()
	}
	if len(m.ring) < m.cfg.BufferSize {
		m.ring = append(m.ring, d)
	} else {
		m.ring[m.next] = d
	}
	m.next = (m.next + 1) % m.cfg.BufferSize

	m.total++
	if d.Success {
		m.success++
	} else {
		m.failure++
		m.lastFail = d.At
	}
	m.latSum += d.Latency
	if m.latMin == 0 || d.Latency < m.latMin {
		m.latMin = d.Latency
	}
	if d.Latency > m.latMax {
		m.latMax = d.Latency
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	telemetry.SetHealthLevel(int(snap.Level))
	if snap.Level >= Unhealthy {
		m.raise(ctx, "error_rate", severityFor(snap.Level),
			fmt.Sprintf("delivery error rate %.0f%% over last %d deliveries", snap.ErrorRate*100, snap.Total))
	}
	if m.latencyEscalated(snap) {
		m.raise(ctx, "latency", notify.SeverityWarning,
			fmt.Sprintf("average delivery latency %.0fms exceeds threshold", snap.AvgLatencyMs))
	}
}

// Health returns the current aggregate view.
func (m *Monitor) Health() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// snapshotLocked derives the health level from the buffered window.
//
// The error rate thresholds stack: above 50% the service is critical, above
// 25% unhealthy, above the configured baseline degraded. Sustained latency
// past twice the threshold escalates one level, and any failure inside the
// last five minutes keeps the service at least degraded so a single bad
// burst stays visible until it ages out.
func (m *Monitor) snapshotLocked() Snapshot {
	snap := Snapshot{
		Total:     m.total,
		Succeeded: m.success,
		Failed:    m.failure,
	}
	if m.total > 0 {
		snap.ErrorRate = float64(m.failure) / float64(m.total)
		snap.AvgLatencyMs = float64(m.latSum.Milliseconds()) / float64(m.total)
		snap.MinLatencyMs = float64(m.latMin.Milliseconds())
		snap.MaxLatencyMs = float64(m.latMax.Milliseconds())
	}

	level := Healthy
	switch {
	case snap.ErrorRate > 0.50:
		level = Critical
		snap.Issues = append(snap.Issues, fmt.Sprintf("error rate %.0f%% above 50%%", snap.ErrorRate*100))
	case snap.ErrorRate > 0.25:
		level = Unhealthy
		snap.Issues = append(snap.Issues, fmt.Sprintf("error rate %.0f%% above 25%%", snap.ErrorRate*100))
	case m.total > 0 && snap.ErrorRate > m.cfg.ErrorRateBaseline:
		level = Degraded
		snap.Issues = append(snap.Issues, fmt.Sprintf("error rate %.0f%% above baseline", snap.ErrorRate*100))
	}

	if m.latencyEscalated(snap) && level < Critical {
		level++
		snap.Issues = append(snap.Issues, fmt.Sprintf("avg latency %.0fms above %dms", snap.AvgLatencyMs, 2*m.cfg.LatencyThresholdMs))
	}

	if !m.lastFail.IsZero() && m.clock.Now().Sub(m.lastFail) < recentFailureGrace && level < Degraded {
		level = Degraded
		snap.Issues = append(snap.Issues, "failures within the last 5 minutes")
	}

	snap.Level = level
	snap.Status = level.String()
	return snap
}

func (m *Monitor) latencyEscalated(snap Snapshot) bool {
	if m.cfg.LatencyThresholdMs <= 0 || snap.Total == 0 {
		return false
	}
	return snap.AvgLatencyMs > float64(2*m.cfg.LatencyThresholdMs)
}

func severityFor(level HealthLevel) notify.Severity {
	if level >= Critical {
		return notify.SeverityCritical
	}
	return notify.SeverityWarning
}

// raise sends an alert unless the same type and severity fired inside the
// dedup window.
func (m *Monitor) raise(ctx context.Context, alertType string, severity notify.Severity, message string) {
	now := m.clock.Now()
	key := alertType + ":" + string(severity)

	m.mu.Lock()
	last, seen := m.lastAlert[key]
	if seen && now.Sub(last) < alertDedupWindow {
		m.mu.Unlock()
		return
	}
	m.lastAlert[key] = now
	m.mu.Unlock()

	alert := notify.Alert{Type: alertType, Severity: severity, Message: message, RaisedAt: now}
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, alert); err != nil {
		m.logger.Warn("failed to deliver alert",
			zap.String("alert_type", alertType),
			zap.Error(err))
	}
}

// Report builds analytics over deliveries inside the configured window.
func (m *Monitor) Report() Analytics {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := time.Duration(m.cfg.AnalyticsWindowMins) * time.Minute
	cutoff := m.clock.Now().Add(-window)

	report := Analytics{WindowMinutes: m.cfg.AnalyticsWindowMins}
	var latSum time.Duration
	var succeeded int
	hours := make(map[time.Time]*HourlyBucket)
	errorCounts := make(map[string]int)
	ipCounts := make(map[string]int)

	for _, d := range m.ring {
		if d.At.Before(cutoff) {
			continue
		}
		report.Total++
		latSum += d.Latency
		hour := d.At.Truncate(time.Hour)
		bucket, ok := hours[hour]
		if !ok {
			bucket = &HourlyBucket{Hour: hour}
			hours[hour] = bucket
		}
		bucket.Total++
		if d.Success {
			succeeded++
			bucket.Succeeded++
		} else if d.ErrorKind != "" {
			errorCounts[d.ErrorKind]++
		}
		if d.SourceIP != "" {
			ipCounts[d.SourceIP]++
		}
	}

	if report.Total > 0 {
		report.SuccessRate = float64(succeeded) / float64(report.Total)
		report.AvgLatencyMs = float64(latSum.Milliseconds()) / float64(report.Total)
	}
	for _, bucket := range hours {
		report.Hourly = append(report.Hourly, *bucket)
	}
	sort.Slice(report.Hourly, func(i, j int) bool {
		return report.Hourly[i].Hour.Before(report.Hourly[j].Hour)
	})
	report.TopErrors = topCounts(errorCounts, 5)
	report.TopSourceIPs = topCounts(ipCounts, 5)
	return report
}

func topCounts(counts map[string]int, limit int) []CountedLabel {
	out := make([]CountedLabel, 0, len(counts))
	for label, count := range counts {
		out = append(out, CountedLabel{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
