package ics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// FeedSource renders the current feed of a property.
type FeedSource func(ctx context.Context, propertyID string) ([]byte, error)

// Publisher renders the feeds of a fixed set of properties and stores them in a sink.
type Publisher struct {
	Properties  []string
	Source      FeedSource
	Sink        Sink
	Logger      *slog.Logger
	Concurrency int
}

// Published maps a property to the location of its feed.
type Published map[string]string

// PublishAll publishes every property. One failing property does not stop the others; the
// failures are joined.
func (p Publisher) PublishAll(ctx context.Context) (Published, error) {
	if p.Source == nil || p.Sink == nil {
		return nil, errors.New("ics: publisher missing source or sink")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := p.Concurrency
	if limit <= 0 {
		limit = 4
	}
	var (
		mu  sync.Mutex
		out = Published{}
	)
	workers := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(limit)
	for _, raw := range p.Properties {
		propertyID := strings.TrimSpace(raw)
		if propertyID == "" {
			continue
		}
		workers.Go(func(ctx context.Context) error {
			body, err := p.Source(ctx, propertyID)
			if err != nil {
				return fmt.Errorf("%s: render: %w", propertyID, err)
			}
			location, err := p.Sink.Put(ctx, propertyID+".ics", body)
			if err != nil {
				return fmt.Errorf("%s: store: %w", propertyID, err)
			}
			mu.Lock()
			out[propertyID] = location
			mu.Unlock()
			logger.Debug("calendar feed published", "property_id", propertyID, "location", location)
			return nil
		})
	}
	err := workers.Wait()
	if err != nil {
		logger.Warn("calendar feed publish incomplete", "published", len(out), "error", err)
	}
	return out, err
}
