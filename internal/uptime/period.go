package uptime

import "time"

// Chart periods.
const (
	Period24h = "24h"
	Period7d  = "7d"
	Period30d = "30d"
	Period90d = "90d"

	DefaultPeriod = Period30d
)

const day = 24 * time.Hour

// Window is a resolved period: the span ending now and how to split it.
type Window struct {
	Period      string
	Start       time.Time
	End         time.Time
	Bucket      time.Duration
	LabelLayout string
}

type periodSpec struct {
	length time.Duration
	bucket time.Duration
	layout string
}

var periods = map[string]periodSpec{
	Period24h: {length: day, bucket: time.Hour, layout: "15:04"},
	Period7d:  {length: 7 * day, bucket: 6 * time.Hour, layout: "Jan 2 15:04"},
	Period30d: {length: 30 * day, bucket: day, layout: "Jan 2"},
	Period90d: {length: 90 * day, bucket: 3 * day, layout: "Jan 2"},
}

// IsValidPeriod reports whether period is one of the known chart periods.
func IsValidPeriod(period string) bool {
	_, ok := periods[period]
	return ok
}

// ResolvePeriod resolves a period name to the window [now-length, now).
// Unknown periods fall back to 30 days split into daily buckets.
func ResolvePeriod(period string, now time.Time) Window {
	spec, ok := periods[period]
	if !ok {
		period = DefaultPeriod
		spec = periods[DefaultPeriod]
	}
	return Window{
		Period:      period,
		Start:       now.Add(-spec.length),
		End:         now,
		Bucket:      spec.bucket,
		LabelLayout: spec.layout,
	}
}

// Buckets splits the window into consecutive sub-intervals of Bucket width.
// The last bucket is clipped to End; empty buckets are skipped.
func (w Window) Buckets() [][2]time.Time {
	if w.Bucket <= 0 {
		return nil
	}
	var out [][2]time.Time
	for start := w.Start; start.Before(w.End); start = start.Add(w.Bucket) {
		end := start.Add(w.Bucket)
		if end.After(w.End) {
			end = w.End
		}
		if !start.Before(end) {
			continue
		}
		out = append(out, [2]time.Time{start, end})
	}
	return out
}
