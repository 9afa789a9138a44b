package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"hostboard/internal/app/policies"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
)

// Loader reads the three resolver sources for a window. Remote failures degrade to empty
// collections and default pricing; only cancellation is reported.
type Loader struct {
	Gateway        policies.CalendarGateway
	Logger         *slog.Logger
	MaxConcurrency int
}

type monthKey struct {
	year  int
	month time.Month
}

func (l *Loader) Load(ctx context.Context, propertyID string, w availability.Window) (availability.Sources, error) {
	var (
		mu      sync.Mutex
		feed    availability.RangeFeed
		pricing = availability.PricingSnapshot{}
	)
	p := pool.New().WithMaxGoroutines(l.maxConcurrency()).WithContext(ctx)

	p.Go(func(ctx context.Context) error {
		got, err := l.Gateway.FetchRange(ctx, propertyID, w.Range.Start, w.Range.End)
		if err != nil {
			if ctx.Err() == nil {
				l.logger().WarnContext(ctx, "calendar range fetch failed, using empty sources",
					"property_id", propertyID, "window", w.Range.String(), "error", err)
			}
			return nil
		}
		mu.Lock()
		feed = got
		mu.Unlock()
		return nil
	})
	for _, m := range monthsOf(w.Range) {
		m := m
		p.Go(func(ctx context.Context) error {
			snapshot, err := l.Gateway.FetchMonthPricing(ctx, propertyID, m.year, m.month)
			if err != nil {
				if ctx.Err() == nil {
					l.logger().WarnContext(ctx, "month pricing fetch failed, using defaults",
						"property_id", propertyID, "year", m.year, "month", int(m.month), "error", err)
				}
				snapshot = availability.DefaultPricing(m.year, m.month)
			}
			mu.Lock()
			for d, day := range snapshot {
				pricing[d] = day
			}
			mu.Unlock()
			return nil
		})
	}
	_ = p.Wait()
	if err := ctx.Err(); err != nil {
		return availability.Sources{}, err
	}
	return availability.SourcesFromFeed(feed, pricing), nil
}

func (l *Loader) maxConcurrency() int {
	if l.MaxConcurrency <= 0 {
		return 4
	}
	return l.MaxConcurrency
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func monthsOf(r daterange.Range) []monthKey {
	var out []monthKey
	cur := daterange.FirstOfMonth(r.Start.Year, r.Start.Month)
	for !cur.After(r.End) {
		out = append(out, monthKey{year: cur.Year, month: cur.Month})
		cur = daterange.LastOfMonth(cur.Year, cur.Month).AddDays(1)
	}
	return out
}
