package navigator

import (
	"context"
	"log/slog"
	"time"

	"casesync-backend/lib/casekey"
	"casesync-backend/lib/scrapers/portal/normalize"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Events returns notifications dated at or after since, minus the ids in
// known, along with the new watermark. Entries sharing the watermark's
// timestamp are returned again unless known lists them. The portal lists
// newest first, so paging stops at the first page with nothing new.
func (n *Navigator) Events(ctx context.Context, since time.Time, known ...string) ([]normalize.Event, time.Time, error) {
	ctx, span := tracer.Start(ctx, "navigator:Events")
	defer span.End()

	page, err := n.client.Get(ctx, n.config.EventsPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load notifications")
		return nil, since, wrap("events", err)
	}

	watermark := since
	seen := make(map[string]bool, len(known))
	for _, id := range known {
		seen[id] = true
	}
	var events []normalize.Event
	for pageIndex := 0; ; pageIndex++ {
		fresh := 0
		for _, event := range normalize.Events(page.Root(), casekey.Key{}).Records {
			if event.Date.Before(since) || seen[event.ID] {
				continue
			}
			seen[event.ID] = true
			events = append(events, event)
			fresh++
			if event.Date.After(watermark) {
				watermark = event.Date
			}
		}
		if fresh == 0 {
			break
		}
		next, ok := normalize.NextPageControl(page.Root())
		if !ok {
			break
		}
		if pageIndex+1 >= n.config.MaxTabPages {
			slog.WarnContext(ctx, "notification pages exceed cap", "cap", n.config.MaxTabPages)
			break
		}
		page, err = n.client.Follow(ctx, page, next)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load next notification page")
			return nil, since, wrap("events:paginate", err)
		}
	}

	span.SetAttributes(attribute.Int("events", len(events)))
	return events, watermark, nil
}
