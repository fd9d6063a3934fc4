package derivation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/derivation"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/store/memory"
	"github.com/bissquit/uptime-garden/internal/uptime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.StatusChange
}

func (p *recordingPublisher) Publish(_ context.Context, change domain.StatusChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changes)
}

type fixture struct {
	store     *memory.Store
	catalog   *catalog.Service
	publisher *recordingPublisher
	engine    *derivation.Engine
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		store:     store,
		catalog:   catalog.NewService(store, store),
		publisher: &recordingPublisher{},
		clock:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	f.engine = derivation.NewEngine(f.catalog, store, f.publisher, derivation.DefaultConfig())
	derivation.SetClock(f.engine, func() time.Time { return f.clock })
	return f
}

func (f *fixture) service(t *testing.T, slug string, status domain.ServiceStatus) *domain.Service {
	t.Helper()
	svc := &domain.Service{OrganizationID: "org-1", Name: slug, Slug: slug, Status: status, CreatedAt: f.clock}
	require.NoError(t, f.store.CreateService(context.Background(), svc, &domain.StatusLogEntry{ChangedAt: f.clock}))
	return svc
}

func (f *fixture) incident(t *testing.T, severity domain.Severity, serviceIDs ...string) *domain.Incident {
	t.Helper()
	inc := &domain.Incident{
		OrganizationID: "org-1",
		Title:          "Database down",
		Severity:       severity,
		Status:         domain.IncidentStatusInvestigating,
		ServiceIDs:     serviceIDs,
		CreatedAt:      f.clock,
	}
	require.NoError(t, f.store.CreateIncident(context.Background(), inc))
	return inc
}

func (f *fixture) resolve(t *testing.T, inc *domain.Incident) {
	t.Helper()
	inc.Status = domain.IncidentStatusResolved
	require.NoError(t, f.store.UpdateIncident(context.Background(), inc))
}

func (f *fixture) status(t *testing.T, id string) domain.ServiceStatus {
	t.Helper()
	svc, err := f.store.GetServiceByID(context.Background(), id)
	require.NoError(t, err)
	return svc.Status
}

func (f *fixture) logCount(t *testing.T, id string) int {
	t.Helper()
	n, err := f.store.Count(context.Background(), id)
	require.NoError(t, err)
	return n
}

func TestEngine_OnIncidentCreated(t *testing.T) {
	tests := []struct {
		name        string
		current     domain.ServiceStatus
		severity    domain.Severity
		wantStatus  domain.ServiceStatus
		wantChanged bool
	}{
		{"operational to major on high", domain.ServiceStatusOperational, domain.SeverityHigh, domain.ServiceStatusMajorOutage, true},
		{"operational to degraded on low", domain.ServiceStatusOperational, domain.SeverityLow, domain.ServiceStatusDegraded, true},
		{"degraded to partial on medium", domain.ServiceStatusDegraded, domain.SeverityMedium, domain.ServiceStatusPartialOutage, true},
		{"major stays on low", domain.ServiceStatusMajorOutage, domain.SeverityLow, domain.ServiceStatusMajorOutage, false},
		{"partial stays on medium", domain.ServiceStatusPartialOutage, domain.SeverityMedium, domain.ServiceStatusPartialOutage, false},
		{"unknown severity changes nothing", domain.ServiceStatusOperational, domain.SeverityUnknown, domain.ServiceStatusOperational, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			svc := f.service(t, "api", tt.current)
			inc := f.incident(t, tt.severity, svc.ID)

			transitions, err := f.engine.OnIncidentCreated(context.Background(), inc)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, f.status(t, svc.ID))
			if tt.wantChanged {
				require.Len(t, transitions, 1)
				assert.Equal(t, tt.current, transitions[0].From)
				assert.Equal(t, tt.wantStatus, transitions[0].To)
				assert.Equal(t, 2, f.logCount(t, svc.ID))
				assert.Equal(t, 1, f.publisher.count())
			} else {
				assert.Empty(t, transitions)
				assert.Equal(t, 1, f.logCount(t, svc.ID))
				assert.Equal(t, 0, f.publisher.count())
			}
		})
	}
}

func TestEngine_OnIncidentCreated_LogEntryReferencesIncident(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, "api", domain.ServiceStatusOperational)
	inc := f.incident(t, domain.SeverityCritical, svc.ID)
	inc.CreatedBy = "user-1"

	f.clock = f.clock.Add(time.Hour)
	_, err := f.engine.OnIncidentCreated(context.Background(), inc)
	require.NoError(t, err)

	last, err := f.store.LastEntryBefore(context.Background(), svc.ID, f.clock.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, last)
	require.NotNil(t, last.IncidentID)
	assert.Equal(t, inc.ID, *last.IncidentID)
	require.NotNil(t, last.StatusFrom)
	assert.Equal(t, domain.ServiceStatusOperational, *last.StatusFrom)
	assert.Equal(t, f.clock, last.ChangedAt)
	require.NotNil(t, last.ChangedBy)
	assert.Equal(t, "user-1", *last.ChangedBy)
	require.NotNil(t, last.Reason)
	assert.Contains(t, *last.Reason, "Database down")
}

func TestEngine_OnIncidentCreated_ResolvedIncidentIgnored(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, "api", domain.ServiceStatusOperational)
	inc := f.incident(t, domain.SeverityCritical, svc.ID)
	inc.Status = domain.IncidentStatusResolved

	transitions, err := f.engine.OnIncidentCreated(context.Background(), inc)
	require.NoError(t, err)
	assert.Empty(t, transitions)
	assert.Equal(t, domain.ServiceStatusOperational, f.status(t, svc.ID))
}

func TestEngine_OnIncidentCreated_MissingServiceDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, "api", domain.ServiceStatusOperational)
	inc := &domain.Incident{
		ID:         "inc-1",
		Severity:   domain.SeverityHigh,
		Status:     domain.IncidentStatusInvestigating,
		ServiceIDs: []string{"missing", svc.ID},
	}

	transitions, err := f.engine.OnIncidentCreated(context.Background(), inc)
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.ServiceStatusMajorOutage, f.status(t, svc.ID))
}

func TestEngine_RecomputeStatus(t *testing.T) {
	t.Run("no active incidents means operational", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(t, "api", domain.ServiceStatusMajorOutage)

		tr, err := f.engine.RecomputeStatus(context.Background(), svc.ID, derivation.Cause{})
		require.NoError(t, err)
		require.NotNil(t, tr)
		assert.Equal(t, domain.ServiceStatusOperational, f.status(t, svc.ID))
	})

	t.Run("worst incident wins", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(t, "api", domain.ServiceStatusOperational)
		f.incident(t, domain.SeverityLow, svc.ID)
		f.incident(t, domain.SeverityMedium, svc.ID)

		_, err := f.engine.RecomputeStatus(context.Background(), svc.ID, derivation.Cause{})
		require.NoError(t, err)
		assert.Equal(t, domain.ServiceStatusPartialOutage, f.status(t, svc.ID))
	})

	t.Run("may downgrade", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(t, "api", domain.ServiceStatusMajorOutage)
		f.incident(t, domain.SeverityLow, svc.ID)

		_, err := f.engine.RecomputeStatus(context.Background(), svc.ID, derivation.Cause{})
		require.NoError(t, err)
		assert.Equal(t, domain.ServiceStatusDegraded, f.status(t, svc.ID))
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(t, "api", domain.ServiceStatusOperational)
		f.incident(t, domain.SeverityHigh, svc.ID)

		first, err := f.engine.RecomputeStatus(context.Background(), svc.ID, derivation.Cause{})
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := f.engine.RecomputeStatus(context.Background(), svc.ID, derivation.Cause{})
		require.NoError(t, err)
		assert.Nil(t, second)

		assert.Equal(t, 2, f.logCount(t, svc.ID))
		assert.Equal(t, 1, f.publisher.count())
	})

	t.Run("already correct writes nothing", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(t, "api", domain.ServiceStatusOperational)

		tr, err := f.engine.RecomputeStatus(context.Background(), svc.ID, derivation.Cause{})
		require.NoError(t, err)
		assert.Nil(t, tr)
		assert.Equal(t, 1, f.logCount(t, svc.ID))
	})
}

func TestEngine_OnIncidentResolved(t *testing.T) {
	f := newFixture(t)
	api := f.service(t, "api", domain.ServiceStatusOperational)
	web := f.service(t, "web", domain.ServiceStatusOperational)

	critical := f.incident(t, domain.SeverityCritical, api.ID, web.ID)
	f.incident(t, domain.SeverityLow, web.ID)

	_, err := f.engine.OnIncidentCreated(context.Background(), critical)
	require.NoError(t, err)

	f.resolve(t, critical)
	transitions, err := f.engine.OnIncidentResolved(context.Background(), critical)
	require.NoError(t, err)
	assert.Len(t, transitions, 2)

	assert.Equal(t, domain.ServiceStatusOperational, f.status(t, api.ID))
	assert.Equal(t, domain.ServiceStatusDegraded, f.status(t, web.ID), "remaining low incident still applies")
}

func TestEngine_OnIncidentUpdated_RemovedServiceRecovers(t *testing.T) {
	f := newFixture(t)
	api := f.service(t, "api", domain.ServiceStatusOperational)
	web := f.service(t, "web", domain.ServiceStatusOperational)

	inc := f.incident(t, domain.SeverityHigh, api.ID, web.ID)
	_, err := f.engine.OnIncidentCreated(context.Background(), inc)
	require.NoError(t, err)

	inc.ServiceIDs = []string{api.ID}
	require.NoError(t, f.store.UpdateIncident(context.Background(), inc))

	_, err = f.engine.OnIncidentUpdated(context.Background(), inc, []string{api.ID, web.ID}, []string{domain.IncidentFieldServices})
	require.NoError(t, err)

	assert.Equal(t, domain.ServiceStatusMajorOutage, f.status(t, api.ID))
	assert.Equal(t, domain.ServiceStatusOperational, f.status(t, web.ID))
}

func TestEngine_OnIncidentUpdated_SeverityLowered(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, "api", domain.ServiceStatusOperational)

	inc := f.incident(t, domain.SeverityCritical, svc.ID)
	_, err := f.engine.OnIncidentCreated(context.Background(), inc)
	require.NoError(t, err)

	inc.Severity = domain.SeverityMedium
	require.NoError(t, f.store.UpdateIncident(context.Background(), inc))

	_, err = f.engine.OnIncidentUpdated(context.Background(), inc, nil, []string{domain.IncidentFieldSeverity})
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusPartialOutage, f.status(t, svc.ID))
}

func TestEngine_ConcurrentCreationsProduceConsistentLog(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, "api", domain.ServiceStatusOperational)

	severities := []domain.Severity{
		domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh,
		domain.SeverityLow, domain.SeverityCritical, domain.SeverityMedium,
	}
	incs := make([]*domain.Incident, 0, len(severities))
	for _, sev := range severities {
		incs = append(incs, f.incident(t, sev, svc.ID))
	}

	var wg sync.WaitGroup
	for _, inc := range incs {
		wg.Add(1)
		go func(inc *domain.Incident) {
			defer wg.Done()
			_, err := f.engine.OnIncidentCreated(context.Background(), inc)
			assert.NoError(t, err)
		}(inc)
	}
	wg.Wait()

	assert.Equal(t, domain.ServiceStatusMajorOutage, f.status(t, svc.ID))

	entries, err := f.store.EntriesInRange(context.Background(), svc.ID, f.clock, f.clock.Add(time.Second))
	require.NoError(t, err)
	for i := 1; i < len(entries); i++ {
		require.NotNil(t, entries[i].StatusFrom)
		assert.Equal(t, entries[i-1].StatusTo, *entries[i].StatusFrom, "log must chain")
		assert.True(t, entries[i].StatusTo.IsWorseThan(*entries[i].StatusFrom))
	}
	assert.Equal(t, len(entries)-1, f.publisher.count())
}

type conflictingStore struct {
	status    domain.ServiceStatus
	conflicts int
	applied   int
}

func (s *conflictingStore) GetService(_ context.Context, id string) (*domain.Service, error) {
	return &domain.Service{ID: id, Status: s.status}, nil
}

func (s *conflictingStore) ApplyTransition(_ context.Context, expected domain.ServiceStatus, entry *domain.StatusLogEntry) error {
	if s.conflicts > 0 {
		s.conflicts--
		return catalog.ErrStatusConflict
	}
	if expected != s.status {
		return catalog.ErrStatusConflict
	}
	s.status = entry.StatusTo
	s.applied++
	return nil
}

type staticIncidents []domain.Incident

func (s staticIncidents) ListActiveIncidentsForService(context.Context, string) ([]domain.Incident, error) {
	return s, nil
}

func TestEngine_RetriesOnConflict(t *testing.T) {
	store := &conflictingStore{status: domain.ServiceStatusOperational, conflicts: 2}
	engine := derivation.NewEngine(store, staticIncidents{{Severity: domain.SeverityHigh}}, nil, derivation.Config{MaxAttempts: 3})

	tr, err := engine.RecomputeStatus(context.Background(), "svc", derivation.Cause{})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, 1, store.applied)
	assert.Equal(t, domain.ServiceStatusMajorOutage, store.status)
}

func TestEngine_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &conflictingStore{status: domain.ServiceStatusOperational, conflicts: 5}
	engine := derivation.NewEngine(store, staticIncidents{{Severity: domain.SeverityHigh}}, nil, derivation.Config{MaxAttempts: 2})

	_, err := engine.RecomputeStatus(context.Background(), "svc", derivation.Cause{})
	assert.ErrorIs(t, err, derivation.ErrTooManyConflicts)
	assert.Equal(t, 0, store.applied)
}

type failingIncidents struct{}

func (failingIncidents) ListActiveIncidentsForService(context.Context, string) ([]domain.Incident, error) {
	return nil, errors.New("connection refused")
}

func TestEngine_RecomputeStatus_IncidentReadError(t *testing.T) {
	store := &conflictingStore{status: domain.ServiceStatusOperational}
	engine := derivation.NewEngine(store, failingIncidents{}, nil, derivation.DefaultConfig())

	_, err := engine.RecomputeStatus(context.Background(), "svc", derivation.Cause{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list active incidents")
	assert.Equal(t, 0, store.applied)
}

func TestEngine_IncidentLifecycleUptime(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock
	svc := f.service(t, "api", domain.ServiceStatusOperational)

	f.clock = t0.Add(30 * time.Minute)
	inc := f.incident(t, domain.SeverityHigh, svc.ID)
	transitions, err := f.engine.OnIncidentCreated(context.Background(), inc)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.ServiceStatusOperational, transitions[0].From)
	assert.Equal(t, domain.ServiceStatusMajorOutage, transitions[0].To)
	assert.Equal(t, f.clock, transitions[0].ChangedAt)

	f.clock = t0.Add(90 * time.Minute)
	f.resolve(t, inc)
	transitions, err = f.engine.OnIncidentResolved(context.Background(), inc)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.ServiceStatusMajorOutage, transitions[0].From)
	assert.Equal(t, domain.ServiceStatusOperational, transitions[0].To)

	t3 := t0.Add(120 * time.Minute)
	calc := uptime.NewCalculator(f.store, f.catalog)
	value, err := calc.CalculateUptimeForPeriod(context.Background(), svc.ID, t0, t3)
	require.NoError(t, err)

	// ((t1 - t0) + (t3 - t2)) / (t3 - t0) * 100
	assert.Equal(t, 50.0, value)

	assert.Equal(t, 3, f.logCount(t, svc.ID))
	assert.Equal(t, 2, f.publisher.count())
}
