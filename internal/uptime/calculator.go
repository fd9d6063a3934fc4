// Package uptime reconstructs historical service availability from the
// status log.
//
// A window [start, end) is replayed as a sequence of segments, each spent in
// one status. Only operational time counts as up; every other status counts
// as downtime regardless of how severe it is. Arithmetic is done in whole
// minutes on immutable time values.
package uptime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/metrics"
	"github.com/bissquit/uptime-garden/internal/statuslog"
)

// ErrInvalidWindow is returned for window input that cannot be parsed.
var ErrInvalidWindow = errors.New("invalid time window")

// ServiceReader provides the live status of a service.
type ServiceReader interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
}

// Calculator computes time-weighted uptime percentages.
type Calculator struct {
	log      statuslog.Reader
	services ServiceReader
}

// NewCalculator creates a new uptime calculator.
func NewCalculator(log statuslog.Reader, services ServiceReader) *Calculator {
	return &Calculator{
		log:      log,
		services: services,
	}
}

// Breakdown is the time a service spent in each status over a window.
type Breakdown struct {
	Start         time.Time                      `json:"start"`
	End           time.Time                      `json:"end"`
	TotalMinutes  int64                          `json:"total_minutes"`
	Minutes       map[domain.ServiceStatus]int64 `json:"minutes"`
	UptimePercent float64                        `json:"uptime_percent"`
	// FromLiveStatus is set when the service had no history to replay and the
	// window was attributed to its current status.
	FromLiveStatus bool `json:"from_live_status"`
}

type segment struct {
	status  domain.ServiceStatus
	minutes int64
}

// CalculateUptimeForPeriod returns the percentage of [start, end) the service
// spent operational, rounded to two decimals. Degenerate windows yield 0.
func (c *Calculator) CalculateUptimeForPeriod(ctx context.Context, serviceID string, start, end time.Time) (float64, error) {
	b, err := c.Breakdown(ctx, serviceID, start, end)
	if err != nil {
		return 0, err
	}
	return b.UptimePercent, nil
}

// Breakdown replays the status log over [start, end).
func (c *Calculator) Breakdown(ctx context.Context, serviceID string, start, end time.Time) (Breakdown, error) {
	began := time.Now()
	defer func() {
		metrics.UptimeCalculationDuration.Observe(time.Since(began).Seconds())
	}()

	result := Breakdown{
		Start:   start,
		End:     end,
		Minutes: make(map[domain.ServiceStatus]int64),
	}

	if !start.Before(end) {
		return result, nil
	}
	result.TotalMinutes = minutesBetween(start, end)
	if result.TotalMinutes <= 0 {
		return result, nil
	}

	segments, fromLive, err := c.replay(ctx, serviceID, start, end, result.TotalMinutes)
	if err != nil {
		return Breakdown{}, err
	}
	result.FromLiveStatus = fromLive

	var up int64
	for _, s := range segments {
		result.Minutes[s.status] += s.minutes
		if s.status.IsOperational() {
			up += s.minutes
		}
	}
	result.UptimePercent = percent(up, result.TotalMinutes)

	return result, nil
}

// replay splits the window into status segments.
func (c *Calculator) replay(ctx context.Context, serviceID string, start, end time.Time, total int64) ([]segment, bool, error) {
	prior, err := c.log.LastEntryBefore(ctx, serviceID, start)
	if err != nil {
		return nil, false, fmt.Errorf("get last entry before window: %w", err)
	}

	entries, err := c.log.EntriesInRange(ctx, serviceID, start, end)
	if err != nil {
		return nil, false, fmt.Errorf("get entries in window: %w", err)
	}

	var initial domain.ServiceStatus
	switch {
	case prior != nil:
		initial = prior.StatusTo
	case len(entries) > 0:
		// History starts inside the window; the time before the first entry
		// is attributed to the status that entry moved away from.
		initial = entries[0].StatusTo
		if entries[0].StatusFrom != nil {
			initial = *entries[0].StatusFrom
		}
	default:
		svc, err := c.services.GetService(ctx, serviceID)
		if err != nil {
			return nil, false, fmt.Errorf("get service: %w", err)
		}
		return []segment{{status: svc.Status, minutes: total}}, true, nil
	}

	if len(entries) == 0 {
		return []segment{{status: initial, minutes: total}}, false, nil
	}

	segments := make([]segment, 0, len(entries)+1)
	cursorTime := start
	cursorStatus := initial
	for _, e := range entries {
		segments = append(segments, segment{status: cursorStatus, minutes: minutesBetween(cursorTime, e.ChangedAt)})
		cursorStatus = e.StatusTo
		cursorTime = e.ChangedAt
	}
	segments = append(segments, segment{status: cursorStatus, minutes: minutesBetween(cursorTime, end)})

	return segments, false, nil
}

// minutesBetween returns whole minutes from a to b, truncated toward zero.
// time.Time.Sub saturates after about 292 years, so wider spans are counted
// in seconds instead.
func minutesBetween(a, b time.Time) int64 {
	if d := b.Sub(a); d > math.MinInt64 && d < math.MaxInt64 {
		return int64(d / time.Minute)
	}
	return (b.Unix() - a.Unix()) / 60
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
