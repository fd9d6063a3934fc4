package memory

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/incidents"
	"github.com/bissquit/uptime-garden/internal/statuslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, s *Store, slug string, status domain.ServiceStatus) *domain.Service {
	t.Helper()
	svc := &domain.Service{
		OrganizationID: "org-1",
		Name:           slug,
		Slug:           slug,
		Status:         status,
		CreatedAt:      base,
	}
	require.NoError(t, s.CreateService(context.Background(), svc, &domain.StatusLogEntry{ChangedAt: base}))
	return svc
}

func entry(serviceID string, from, to domain.ServiceStatus, at time.Time) *domain.StatusLogEntry {
	return &domain.StatusLogEntry{
		ServiceID:  serviceID,
		StatusFrom: domain.StatusPtr(from),
		StatusTo:   to,
		ChangedAt:  at,
	}
}

func TestStore_CreateService_WritesCreationEntry(t *testing.T) {
	s := New()
	svc := newService(t, s, "api", domain.ServiceStatusDegraded)

	assert.NotEmpty(t, svc.ID)

	entries, err := s.EntriesInRange(context.Background(), svc.ID, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsCreation())
	assert.Equal(t, domain.ServiceStatusDegraded, entries[0].StatusTo)
}

func TestStore_CreateService_DuplicateSlug(t *testing.T) {
	s := New()
	newService(t, s, "api", domain.ServiceStatusOperational)

	err := s.CreateService(context.Background(), &domain.Service{OrganizationID: "org-1", Slug: "api"}, nil)
	assert.ErrorIs(t, err, catalog.ErrSlugExists)

	// same slug in another organization is fine
	err = s.CreateService(context.Background(), &domain.Service{OrganizationID: "org-2", Slug: "api"}, nil)
	assert.NoError(t, err)
}

func TestStore_ApplyStatusTransition(t *testing.T) {
	ctx := context.Background()
	s := New()
	svc := newService(t, s, "api", domain.ServiceStatusOperational)

	e := entry(svc.ID, domain.ServiceStatusOperational, domain.ServiceStatusMajorOutage, base.Add(time.Minute))
	require.NoError(t, s.ApplyStatusTransition(ctx, domain.ServiceStatusOperational, e))

	got, err := s.GetServiceByID(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusMajorOutage, got.Status)

	count, err := s.Count(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_ApplyStatusTransition_Conflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	svc := newService(t, s, "api", domain.ServiceStatusOperational)

	e := entry(svc.ID, domain.ServiceStatusDegraded, domain.ServiceStatusMajorOutage, base.Add(time.Minute))
	err := s.ApplyStatusTransition(ctx, domain.ServiceStatusDegraded, e)
	assert.ErrorIs(t, err, catalog.ErrStatusConflict)

	count, err := s.Count(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "conflict must not append")
}

func TestStore_ApplyStatusTransition_NoHistoryKeepsStatusFrom(t *testing.T) {
	ctx := context.Background()
	s := New()
	svc := &domain.Service{OrganizationID: "org-1", Slug: "legacy", Status: domain.ServiceStatusOperational}
	require.NoError(t, s.CreateService(ctx, svc, nil))

	e := entry(svc.ID, domain.ServiceStatusOperational, domain.ServiceStatusDegraded, base)
	require.NoError(t, s.ApplyStatusTransition(ctx, domain.ServiceStatusOperational, e))

	last, err := s.LastEntryBefore(ctx, svc.ID, base.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, last)
	require.NotNil(t, last.StatusFrom)
	assert.Equal(t, domain.ServiceStatusOperational, *last.StatusFrom)
}

func TestStore_ApplyStatusTransition_UnknownService(t *testing.T) {
	s := New()
	e := entry("missing", domain.ServiceStatusOperational, domain.ServiceStatusDegraded, base)
	err := s.ApplyStatusTransition(context.Background(), domain.ServiceStatusOperational, e)
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)
}

func TestStore_Append_Validates(t *testing.T) {
	s := New()
	err := s.Append(context.Background(), &domain.StatusLogEntry{StatusTo: domain.ServiceStatusOperational, ChangedAt: base})
	assert.ErrorIs(t, err, statuslog.ErrInvalidEntry)
}

func TestStore_RangeQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	svc := newService(t, s, "api", domain.ServiceStatusOperational)

	t1 := base.Add(10 * time.Minute)
	t2 := base.Add(20 * time.Minute)
	require.NoError(t, s.Append(ctx, entry(svc.ID, domain.ServiceStatusOperational, domain.ServiceStatusDegraded, t2)))
	require.NoError(t, s.Append(ctx, entry(svc.ID, domain.ServiceStatusOperational, domain.ServiceStatusMajorOutage, t1)))

	t.Run("half-open range ascending", func(t *testing.T) {
		entries, err := s.EntriesInRange(ctx, svc.ID, t1, t2)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.ServiceStatusMajorOutage, entries[0].StatusTo)
	})

	t.Run("full range ordered by time", func(t *testing.T) {
		entries, err := s.EntriesInRange(ctx, svc.ID, base, base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.True(t, entries[0].Before(&entries[1]))
		assert.True(t, entries[1].Before(&entries[2]))
	})

	t.Run("last entry before is strict", func(t *testing.T) {
		last, err := s.LastEntryBefore(ctx, svc.ID, t2)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, t1, last.ChangedAt)
	})

	t.Run("nothing before creation", func(t *testing.T) {
		last, err := s.LastEntryBefore(ctx, svc.ID, base)
		require.NoError(t, err)
		assert.Nil(t, last)
	})
}

func TestStore_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	svc := newService(t, s, "api", domain.ServiceStatusOperational)

	at := base.Add(time.Minute)
	require.NoError(t, s.Append(ctx, entry(svc.ID, domain.ServiceStatusOperational, domain.ServiceStatusDegraded, at)))
	require.NoError(t, s.Append(ctx, entry(svc.ID, domain.ServiceStatusDegraded, domain.ServiceStatusOperational, at)))

	entries, err := s.EntriesInRange(ctx, svc.ID, at, at.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ServiceStatusDegraded, entries[0].StatusTo)
	assert.Equal(t, domain.ServiceStatusOperational, entries[1].StatusTo)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
}

func TestStore_ReturnedEntriesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	svc := newService(t, s, "api", domain.ServiceStatusOperational)

	entries, err := s.EntriesInRange(ctx, svc.ID, base, base.Add(time.Hour))
	require.NoError(t, err)
	entries[0].StatusTo = domain.ServiceStatusMajorOutage

	again, err := s.EntriesInRange(ctx, svc.ID, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOperational, again[0].StatusTo)
}

func TestStore_List_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	svc := newService(t, s, "api", domain.ServiceStatusOperational)
	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Append(ctx, entry(svc.ID, domain.ServiceStatusOperational, domain.ServiceStatusDegraded, base.Add(time.Duration(i)*time.Minute))))
	}

	page, err := s.List(ctx, svc.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, base.Add(3*time.Minute), page[0].ChangedAt)
	assert.Equal(t, base.Add(2*time.Minute), page[1].ChangedAt)
}

func TestStore_Incidents(t *testing.T) {
	ctx := context.Background()
	s := New()
	svc := newService(t, s, "api", domain.ServiceStatusOperational)
	other := newService(t, s, "web", domain.ServiceStatusOperational)

	active := &domain.Incident{
		OrganizationID: "org-1",
		Severity:       domain.SeverityHigh,
		Status:         domain.IncidentStatusInvestigating,
		ServiceIDs:     []string{svc.ID},
	}
	resolved := &domain.Incident{
		OrganizationID: "org-1",
		Severity:       domain.SeverityLow,
		Status:         domain.IncidentStatusResolved,
		ServiceIDs:     []string{svc.ID, other.ID},
	}
	require.NoError(t, s.CreateIncident(ctx, active))
	require.NoError(t, s.CreateIncident(ctx, resolved))

	list, err := s.ListActiveIncidentsForService(ctx, svc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID, list[0].ID)

	list, err = s.ListActiveIncidentsForService(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	t.Run("unknown affected service", func(t *testing.T) {
		err := s.CreateIncident(ctx, &domain.Incident{ServiceIDs: []string{"nope"}})
		assert.ErrorIs(t, err, incidents.ErrAffectedServiceNotFound)
	})

	t.Run("service of another organization", func(t *testing.T) {
		foreign := &domain.Service{OrganizationID: "org-2", Name: "db", Slug: "db"}
		require.NoError(t, s.CreateService(ctx, foreign, nil))

		err := s.CreateIncident(ctx, &domain.Incident{OrganizationID: "org-1", ServiceIDs: []string{svc.ID, foreign.ID}})
		assert.ErrorIs(t, err, incidents.ErrAffectedServiceNotFound)

		moved := *active
		moved.ServiceIDs = []string{foreign.ID}
		err = s.UpdateIncident(ctx, &moved)
		assert.ErrorIs(t, err, incidents.ErrAffectedServiceNotFound)
	})

	t.Run("update missing incident", func(t *testing.T) {
		err := s.UpdateIncident(ctx, &domain.Incident{ID: "nope"})
		assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)
	})

	t.Run("get returns copy", func(t *testing.T) {
		got, err := s.GetIncident(ctx, active.ID)
		require.NoError(t, err)
		got.ServiceIDs[0] = "changed"

		again, err := s.GetIncident(ctx, active.ID)
		require.NoError(t, err)
		assert.Equal(t, svc.ID, again.ServiceIDs[0])
	})
}
