package uptime

import (
	"context"
	"fmt"
	"time"
)

// ChartPoint is one bucket of an uptime trend.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Label     string    `json:"label"`
}

// Charter produces uptime trend series.
type Charter struct {
	calc *Calculator
	now  func() time.Time
}

// NewCharter creates a new chart generator.
func NewCharter(calc *Calculator) *Charter {
	return &Charter{
		calc: calc,
		now:  time.Now,
	}
}

// GetUptimeChartData returns one point per bucket of the resolved period, in
// chronological order.
func (c *Charter) GetUptimeChartData(ctx context.Context, serviceID, period string) ([]ChartPoint, error) {
	window := ResolvePeriod(period, c.now().UTC())
	return c.chart(ctx, serviceID, window)
}

func (c *Charter) chart(ctx context.Context, serviceID string, window Window) ([]ChartPoint, error) {
	buckets := window.Buckets()
	points := make([]ChartPoint, 0, len(buckets))
	for _, b := range buckets {
		value, err := c.calc.CalculateUptimeForPeriod(ctx, serviceID, b[0], b[1])
		if err != nil {
			return nil, fmt.Errorf("calculate bucket %s: %w", b[0].Format(time.RFC3339), err)
		}
		points = append(points, ChartPoint{
			Timestamp: b[0],
			Uptime:    value,
			Label:     b[0].Format(window.LabelLayout),
		})
	}
	return points, nil
}
