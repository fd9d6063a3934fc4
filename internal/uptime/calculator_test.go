package uptime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

type history struct {
	t       *testing.T
	store   *memory.Store
	catalog *catalog.Service
	calc    *Calculator
	n       int
}

func (h *history) slug() string {
	h.n++
	return fmt.Sprintf("svc-%d", h.n)
}

func newHistory(t *testing.T) *history {
	t.Helper()
	store := memory.New()
	services := catalog.NewService(store, store)
	return &history{t: t, store: store, catalog: services, calc: NewCalculator(store, services)}
}

// service creates a service whose history starts with a creation entry at createdAt.
func (h *history) service(status domain.ServiceStatus, createdAt time.Time) string {
	h.t.Helper()
	svc := &domain.Service{OrganizationID: "org-1", Name: "api", Slug: h.slug(), Status: status}
	require.NoError(h.t, h.store.CreateService(context.Background(), svc, &domain.StatusLogEntry{ChangedAt: createdAt}))
	return svc.ID
}

// bareService creates a service without any log history.
func (h *history) bareService(status domain.ServiceStatus) string {
	h.t.Helper()
	svc := &domain.Service{OrganizationID: "org-1", Name: "legacy", Slug: h.slug(), Status: status}
	require.NoError(h.t, h.store.CreateService(context.Background(), svc, nil))
	return svc.ID
}

func (h *history) transition(serviceID string, from, to domain.ServiceStatus, at time.Time) {
	h.t.Helper()
	require.NoError(h.t, h.store.ApplyStatusTransition(context.Background(), from, &domain.StatusLogEntry{
		ServiceID:  serviceID,
		StatusFrom: domain.StatusPtr(from),
		StatusTo:   to,
		ChangedAt:  at,
	}))
}

func (h *history) uptime(serviceID string, start, end time.Time) float64 {
	h.t.Helper()
	v, err := h.calc.CalculateUptimeForPeriod(context.Background(), serviceID, start, end)
	require.NoError(h.t, err)
	return v
}

func TestCalculateUptimeForPeriod_DegenerateWindow(t *testing.T) {
	h := newHistory(t)
	withHistory := h.service(domain.ServiceStatusOperational, t0)
	without := h.bareService(domain.ServiceStatusOperational)

	for _, id := range []string{withHistory, without} {
		assert.Equal(t, 0.0, h.uptime(id, t0.Add(time.Hour), t0.Add(time.Hour)))
		assert.Equal(t, 0.0, h.uptime(id, t0.Add(2*time.Hour), t0.Add(time.Hour)), "start after end")
		assert.Equal(t, 0.0, h.uptime(id, t0, t0.Add(30*time.Second)), "shorter than a minute")
	}
}

func TestCalculateUptimeForPeriod_NoHistoryFallback(t *testing.T) {
	h := newHistory(t)
	up := h.bareService(domain.ServiceStatusOperational)
	down := h.bareService(domain.ServiceStatusDegraded)

	windows := [][2]time.Time{
		{t0, t0.Add(time.Hour)},
		{t0.Add(-365 * day), t0},
		{t0.Add(17 * time.Minute), t0.Add(90 * day)},
	}
	for _, w := range windows {
		assert.Equal(t, 100.0, h.uptime(up, w[0], w[1]))
		assert.Equal(t, 0.0, h.uptime(down, w[0], w[1]))
	}
}

func TestCalculateUptimeForPeriod_SingleTransitionInsideWindow(t *testing.T) {
	h := newHistory(t)
	id := h.bareService(domain.ServiceStatusOperational)

	start := t0
	end := t0.Add(minutes(100))
	at := t0.Add(minutes(25))
	h.transition(id, domain.ServiceStatusOperational, domain.ServiceStatusMajorOutage, at)

	// (T - start) / (end - start) * 100
	assert.Equal(t, 25.0, h.uptime(id, start, end))
}

func TestCalculateUptimeForPeriod_TransitionFromBeforeWindow(t *testing.T) {
	h := newHistory(t)
	id := h.service(domain.ServiceStatusOperational, t0)
	h.transition(id, domain.ServiceStatusOperational, domain.ServiceStatusMajorOutage, t0.Add(minutes(30)))

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  float64
	}{
		{"entirely before outage", t0, t0.Add(minutes(30)), 100},
		{"entirely during outage", t0.Add(minutes(40)), t0.Add(minutes(100)), 0},
		{"straddles outage start", t0.Add(minutes(10)), t0.Add(minutes(50)), 50},
		{"window starts at outage", t0.Add(minutes(30)), t0.Add(minutes(60)), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.uptime(id, tt.start, tt.end))
		})
	}
}

func TestCalculateUptimeForPeriod_NonOperationalStatusesAreAllDown(t *testing.T) {
	h := newHistory(t)
	id := h.service(domain.ServiceStatusOperational, t0)
	h.transition(id, domain.ServiceStatusOperational, domain.ServiceStatusDegraded, t0.Add(minutes(10)))
	h.transition(id, domain.ServiceStatusDegraded, domain.ServiceStatusPartialOutage, t0.Add(minutes(20)))
	h.transition(id, domain.ServiceStatusPartialOutage, domain.ServiceStatusMajorOutage, t0.Add(minutes(30)))
	h.transition(id, domain.ServiceStatusMajorOutage, domain.ServiceStatusOperational, t0.Add(minutes(40)))

	// up during [0, 10) and [40, 50)
	assert.Equal(t, 40.0, h.uptime(id, t0, t0.Add(minutes(50))))
}

func TestCalculateUptimeForPeriod_CenturiesWideWindow(t *testing.T) {
	h := newHistory(t)
	created := time.Date(1993, 1, 1, 0, 0, 0, 0, time.UTC)
	id := h.service(domain.ServiceStatusOperational, created)
	h.transition(id, domain.ServiceStatusOperational, domain.ServiceStatusMajorOutage, created.Add(24*time.Hour))
	h.transition(id, domain.ServiceStatusMajorOutage, domain.ServiceStatusOperational, created.Add(48*time.Hour))

	start := time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2090, 1, 1, 0, 0, 0, 0, time.UTC)

	b, err := h.calc.Breakdown(context.Background(), id, start, end)
	require.NoError(t, err)
	assert.Equal(t, (end.Unix()-start.Unix())/60, b.TotalMinutes)
	assert.Equal(t, int64(24*60), b.Minutes[domain.ServiceStatusMajorOutage])
	assert.LessOrEqual(t, b.UptimePercent, 100.0)
	assert.Equal(t, 100.0, b.UptimePercent)
}

func TestMinutesBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int64
	}{
		{"partial minute truncated", t0, t0.Add(90 * time.Second), 1},
		{"one hour", t0, t0.Add(time.Hour), 60},
		{"beyond duration range", time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Unix() - time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC).Unix()) / 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, minutesBetween(tt.a, tt.b))
		})
	}
}

func TestCalculateUptimeForPeriod_Rounding(t *testing.T) {
	h := newHistory(t)
	id := h.service(domain.ServiceStatusOperational, t0)
	h.transition(id, domain.ServiceStatusOperational, domain.ServiceStatusDegraded, t0.Add(minutes(1)))

	// 1 of 3 minutes up
	assert.Equal(t, 33.33, h.uptime(id, t0, t0.Add(minutes(3))))
	// 2 of 3 minutes up
	id2 := h.service(domain.ServiceStatusOperational, t0)
	h.transition(id2, domain.ServiceStatusOperational, domain.ServiceStatusDegraded, t0.Add(minutes(2)))
	assert.Equal(t, 66.67, h.uptime(id2, t0, t0.Add(minutes(3))))
}

func TestCalculateUptimeForPeriod_CreationInsideWindow(t *testing.T) {
	h := newHistory(t)
	id := h.service(domain.ServiceStatusDegraded, t0.Add(minutes(20)))
	h.transition(id, domain.ServiceStatusDegraded, domain.ServiceStatusOperational, t0.Add(minutes(60)))

	// time before creation takes the creation status
	assert.Equal(t, 40.0, h.uptime(id, t0, t0.Add(minutes(100))))
}

func TestCalculateUptimeForPeriod_UnknownServiceWithoutHistory(t *testing.T) {
	h := newHistory(t)
	_, err := h.calc.CalculateUptimeForPeriod(context.Background(), "missing", t0, t0.Add(time.Hour))
	require.Error(t, err)
}

func TestBreakdown(t *testing.T) {
	h := newHistory(t)
	id := h.service(domain.ServiceStatusOperational, t0)
	h.transition(id, domain.ServiceStatusOperational, domain.ServiceStatusPartialOutage, t0.Add(minutes(15)))
	h.transition(id, domain.ServiceStatusPartialOutage, domain.ServiceStatusOperational, t0.Add(minutes(45)))

	b, err := h.calc.Breakdown(context.Background(), id, t0, t0.Add(minutes(60)))
	require.NoError(t, err)

	assert.Equal(t, int64(60), b.TotalMinutes)
	assert.Equal(t, int64(30), b.Minutes[domain.ServiceStatusOperational])
	assert.Equal(t, int64(30), b.Minutes[domain.ServiceStatusPartialOutage])
	assert.Equal(t, 50.0, b.UptimePercent)
	assert.False(t, b.FromLiveStatus)
}

func TestBreakdown_FromLiveStatus(t *testing.T) {
	h := newHistory(t)
	id := h.bareService(domain.ServiceStatusMajorOutage)

	b, err := h.calc.Breakdown(context.Background(), id, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, b.FromLiveStatus)
	assert.Equal(t, int64(60), b.Minutes[domain.ServiceStatusMajorOutage])
}
