package scraper

import (
	"context"
	"strings"
	"time"

	"casesync-backend/lib/scrapers/portal/navigator"
	"casesync-backend/lib/scrapers/portal/normalize"
	"casesync-backend/services/casesync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (s Service) record(ctx context.Context, operation string, err error) {
	scrapeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome(err)),
	))
}

// Events returns the notifications dated at or after since that are not in
// known, and the new watermark.
func (s Service) Events(ctx context.Context, userID string, since time.Time, known ...string) ([]normalize.Event, time.Time, error) {
	ctx, span := tracer.Start(ctx, "Events")
	defer span.End()

	if userID == "" {
		return nil, since, invalid("user_id", "is required")
	}

	var (
		events    []normalize.Event
		watermark = since
	)
	err := s.withPortal(ctx, userID, func(ctx context.Context, nav *navigator.Navigator) error {
		var err error
		events, watermark, err = nav.Events(ctx, since, known...)
		return err
	})
	s.record(ctx, "events", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, since, err
	}
	span.SetAttributes(attribute.Int("events", len(events)))
	return events, watermark, nil
}

// Search runs the portal's case search and the candidate selection.
func (s Service) Search(ctx context.Context, userID string, q navigator.Query) (navigator.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	switch {
	case userID == "":
		return navigator.SearchResult{}, invalid("user_id", "is required")
	case strings.TrimSpace(q.Jurisdiction) == "":
		return navigator.SearchResult{}, invalid("jurisdiction", "is required")
	case strings.TrimSpace(q.Number) == "":
		return navigator.SearchResult{}, invalid("number", "is required")
	case strings.TrimSpace(q.Year) == "":
		return navigator.SearchResult{}, invalid("year", "is required")
	case !isDigits(strings.TrimSpace(q.Number)):
		return navigator.SearchResult{}, invalid("number", "must be numeric")
	case len(strings.TrimSpace(q.Year)) != 4 || !isDigits(strings.TrimSpace(q.Year)):
		return navigator.SearchResult{}, invalid("year", "must be a four digit year")
	}

	var result navigator.SearchResult
	err := s.withPortal(ctx, userID, func(ctx context.Context, nav *navigator.Navigator) error {
		var err error
		result, err = nav.Search(ctx, q)
		return err
	})
	s.record(ctx, "search", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return navigator.SearchResult{}, err
	}
	return result, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type CaseOutput struct {
	Details navigator.CaseDetails
	// Sync is nil when the records were not persisted.
	Sync *casesync.Result
}

// ScrapeCase opens a case by its displayed key and reads every tab. With
// persist set the records are synced and their documents downloaded while
// the portal session is still held.
func (s Service) ScrapeCase(ctx context.Context, userID, rawKey string, persist bool) (CaseOutput, error) {
	ctx, span := tracer.Start(ctx, "ScrapeCase")
	defer span.End()
	span.SetAttributes(attribute.String("case_key", rawKey), attribute.Bool("persist", persist))

	if userID == "" {
		return CaseOutput{}, invalid("user_id", "is required")
	}
	q, err := navigator.QueryFromKey(rawKey)
	if err != nil {
		return CaseOutput{}, invalid("case_key", err.Error())
	}

	var out CaseOutput
	err = s.withPortal(ctx, userID, func(ctx context.Context, nav *navigator.Navigator) error {
		details, err := nav.ScrapeCase(ctx, q)
		if err != nil {
			return err
		}
		out.Details = details
		if !persist {
			return nil
		}
		result, err := s.sync.Sync(ctx, casesync.Input{
			UserID:  userID,
			Details: details,
			Fetcher: nav.Client(),
			Base:    nav.Client().BaseUrl,
		})
		if err != nil {
			return err
		}
		out.Sync = &result
		return nil
	})
	s.record(ctx, "scrape_case", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CaseOutput{}, err
	}
	return out, nil
}
