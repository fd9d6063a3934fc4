// Package aggregate composes per-service uptime and status derivation into
// organization-wide summaries and bulk operations.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/derivation"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/bissquit/uptime-garden/internal/pkg/metrics"
	"github.com/bissquit/uptime-garden/internal/uptime"
	"golang.org/x/sync/errgroup"
)

// UptimeCalculator computes uptime for one service and window.
type UptimeCalculator interface {
	CalculateUptimeForPeriod(ctx context.Context, serviceID string, start, end time.Time) (float64, error)
}

// ServiceLister lists the services of an organization.
type ServiceLister interface {
	ListOrganizationServices(ctx context.Context, organizationID string) ([]domain.Service, error)
}

// StatusRecomputer recomputes a service's status from its active incidents.
type StatusRecomputer interface {
	RecomputeStatus(ctx context.Context, serviceID string, cause derivation.Cause) (*derivation.Transition, error)
}

// Config contains aggregator configuration.
type Config struct {
	// Concurrency bounds how many services are processed at once.
	Concurrency int
}

// ServiceUptime is the uptime of one service over a period.
type ServiceUptime struct {
	ServiceID   string               `json:"service_id"`
	ServiceName string               `json:"service_name"`
	Status      domain.ServiceStatus `json:"status"`
	Uptime      float64              `json:"uptime"`
}

// OrganizationUptime summarizes all services of an organization.
type OrganizationUptime struct {
	OrganizationID string          `json:"organization_id"`
	Period         string          `json:"period"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Average        float64         `json:"average"`
	Services       []ServiceUptime `json:"services"`
}

// RecalculateReport describes the outcome of a bulk status recalculation.
type RecalculateReport struct {
	OrganizationID string                  `json:"organization_id"`
	Total          int                     `json:"total"`
	Changed        []derivation.Transition `json:"changed"`
	Unchanged      int                     `json:"unchanged"`
	// Failed maps service IDs to the error that stopped their recomputation.
	Failed map[string]string `json:"failed"`
}

// Aggregator produces bulk uptime metrics and runs bulk recalculation.
type Aggregator struct {
	calc       UptimeCalculator
	services   ServiceLister
	recomputer StatusRecomputer
	config     Config
	now        func() time.Time
}

// NewAggregator creates a new aggregator.
func NewAggregator(calc UptimeCalculator, services ServiceLister, recomputer StatusRecomputer, config Config) *Aggregator {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	return &Aggregator{
		calc:       calc,
		services:   services,
		recomputer: recomputer,
		config:     config,
		now:        time.Now,
	}
}

// GetBulkUptimeMetrics computes uptime for each service over the resolved
// period, sorted by uptime descending. Ties are ordered by name, then ID.
func (a *Aggregator) GetBulkUptimeMetrics(ctx context.Context, services []domain.Service, period string) ([]ServiceUptime, error) {
	window := uptime.ResolvePeriod(period, a.now().UTC())
	return a.bulk(ctx, services, window)
}

func (a *Aggregator) bulk(ctx context.Context, services []domain.Service, window uptime.Window) ([]ServiceUptime, error) {
	results := make([]ServiceUptime, len(services))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)
	for i := range services {
		svc := services[i]
		g.Go(func() error {
			value, err := a.calc.CalculateUptimeForPeriod(gctx, svc.ID, window.Start, window.End)
			if err != nil {
				return fmt.Errorf("calculate uptime for %s: %w", svc.ID, err)
			}
			results[i] = ServiceUptime{
				ServiceID:   svc.ID,
				ServiceName: svc.Name,
				Status:      svc.Status,
				Uptime:      value,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Uptime != results[j].Uptime {
			return results[i].Uptime > results[j].Uptime
		}
		if results[i].ServiceName != results[j].ServiceName {
			return results[i].ServiceName < results[j].ServiceName
		}
		return results[i].ServiceID < results[j].ServiceID
	})

	return results, nil
}

// GetOrganizationUptimeAverage returns the mean uptime of the services over
// the resolved period. An empty set averages to 100.
func (a *Aggregator) GetOrganizationUptimeAverage(ctx context.Context, services []domain.Service, period string) (float64, error) {
	results, err := a.GetBulkUptimeMetrics(ctx, services, period)
	if err != nil {
		return 0, err
	}
	return average(results), nil
}

// OrganizationUptime returns per-service uptime and the average for all
// services of an organization.
func (a *Aggregator) OrganizationUptime(ctx context.Context, organizationID, period string) (*OrganizationUptime, error) {
	services, err := a.services.ListOrganizationServices(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	window := uptime.ResolvePeriod(period, a.now().UTC())
	results, err := a.bulk(ctx, services, window)
	if err != nil {
		return nil, err
	}

	return &OrganizationUptime{
		OrganizationID: organizationID,
		Period:         window.Period,
		Start:          window.Start,
		End:            window.End,
		Average:        average(results),
		Services:       results,
	}, nil
}

// RecalculateAllServicesStatus recomputes the status of every service of the
// organization. A failure on one service is logged and reported without
// stopping the others. Failing to list the services or a cancelled context is
// an error.
func (a *Aggregator) RecalculateAllServicesStatus(ctx context.Context, organizationID string) (*RecalculateReport, error) {
	services, err := a.services.ListOrganizationServices(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	// engine logs for this run carry the organization too
	ctx = ctxlog.With(ctx, "organization_id", organizationID)
	logger := ctxlog.FromContext(ctx)
	report := &RecalculateReport{
		OrganizationID: organizationID,
		Total:          len(services),
		Changed:        make([]derivation.Transition, 0),
		Failed:         make(map[string]string),
	}
	cause := derivation.Cause{Reason: "Status recalculated"}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(a.config.Concurrency)
	for _, svc := range services {
		serviceID := svc.ID
		g.Go(func() error {
			// a cancelled run stops; per-service failures do not
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := a.recomputer.RecomputeStatus(ctx, serviceID, cause)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				metrics.RecomputeFailures.Inc()
				logger.Error("failed to recompute service status", "service_id", serviceID, "error", err)
				report.Failed[serviceID] = err.Error()
			case t != nil:
				report.Changed = append(report.Changed, *t)
			default:
				report.Unchanged++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recalculate services: %w", err)
	}

	sort.Slice(report.Changed, func(i, j int) bool {
		return report.Changed[i].ServiceID < report.Changed[j].ServiceID
	})

	logger.Info("recalculated service statuses",
		"total", report.Total,
		"changed", len(report.Changed),
		"failed", len(report.Failed),
	)

	return report, nil
}

func average(results []ServiceUptime) float64 {
	if len(results) == 0 {
		return 100
	}
	var sum float64
	for _, r := range results {
		sum += r.Uptime
	}
	return math.Round(sum/float64(len(results))*100) / 100
}
