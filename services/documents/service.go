// Package documents downloads the PDFs referenced by docket entries and
// stores them in blob storage under a key derived from the case and the
// document id.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"casesync-backend/lib/blobstore"
	"casesync-backend/lib/casekey"
	"casesync-backend/lib/resilience"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/scrapers/portal/normalize"
	"casesync-backend/lib/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = telemetry.Tracer("casesync.services.documents")
var meter = telemetry.Meter("casesync.services.documents")

var downloadCounter, _ = meter.Int64Counter(
	"documents.downloads",
	metric.WithDescription("Document downloads by outcome."),
)

// Fetcher downloads a resolved document url, *core.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, string, error)
}

type Item struct {
	Case       casekey.Key
	DocumentID string
	// Ref is the document reference as rendered: a link, a relative path or
	// a script opening a viewer.
	Ref string
}

type Result struct {
	StorageKey string
	Size       int64
	// Skipped is set when the object was already stored and no download
	// happened.
	Skipped bool
}

type Stats struct {
	Stored  int
	Skipped int
	Errors  int
}

type Service struct {
	bucket   blobstore.Bucket
	executor *resilience.Executor
}

func NewService(bucket blobstore.Bucket, executor *resilience.Executor) Service {
	return Service{
		bucket:   bucket,
		executor: executor,
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// StorageKey is the object key of a case document.
func StorageKey(key casekey.Key, documentID string) string {
	id := strings.Trim(unsafeKeyChars.ReplaceAllString(documentID, "-"), "-")
	if id == "" {
		id = normalize.StableID(key.String(), documentID)
	}
	return fmt.Sprintf("cases/%s/%s.pdf", key.Slug(), id)
}

func classify(err error) error {
	var statusErr *core.StatusError
	if errors.Is(err, core.ErrAuthRequired) {
		return resilience.Permanent(err)
	}
	if errors.As(err, &statusErr) && !statusErr.Temporary() {
		return resilience.Permanent(err)
	}
	return err
}

// ErrNotPDF is returned when the portal answered a download with something
// other than a PDF, usually an error or login page. Nothing is stored.
var ErrNotPDF = errors.New("downloaded document is not a pdf")

var pdfMagic = []byte("%PDF-")

func isPDF(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(body[:min(len(body), 1024)], "\r\n\t "), pdfMagic)
}

// Store downloads item unless its object already exists.
func (s Service) Store(ctx context.Context, fetcher Fetcher, base *url.URL, item Item) (Result, error) {
	ctx, span := tracer.Start(ctx, "Store")
	defer span.End()

	key := StorageKey(item.Case, item.DocumentID)
	span.SetAttributes(attribute.String("key", key))

	exists, err := s.bucket.Exists(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check object")
		return Result{}, err
	}
	if exists {
		downloadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "skipped")))
		return Result{StorageKey: key, Skipped: true}, nil
	}

	u, ok := normalize.ResolveRef(base, item.Ref)
	if !ok {
		err := fmt.Errorf("unresolvable document reference %q", item.Ref)
		span.SetStatus(codes.Error, err.Error())
		downloadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return Result{}, err
	}

	var (
		body        []byte
		contentType string
	)
	err = s.executor.Execute(ctx, "documents:fetch", func(ctx context.Context) error {
		var err error
		body, contentType, err = fetcher.Fetch(ctx, u)
		if err != nil {
			return classify(err)
		}
		if len(body) == 0 {
			return resilience.Permanent(fmt.Errorf("empty document at %s", u.Path))
		}
		if !isPDF(body) {
			return resilience.Permanent(fmt.Errorf("%w: %s served %q", ErrNotPDF, u.Path, contentType))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download document")
		downloadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return Result{}, err
	}

	err = s.bucket.Put(ctx, key, body, "application/pdf")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload document")
		downloadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return Result{}, err
	}

	downloadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "stored")))
	return Result{StorageKey: key, Size: int64(len(body))}, nil
}

// StoreAll stores every item, counting failures instead of stopping. A
// session drop stops the batch since every further download would fail the
// same way.
func (s Service) StoreAll(ctx context.Context, fetcher Fetcher, base *url.URL, items []Item) (map[string]Result, Stats, error) {
	results := map[string]Result{}
	var stats Stats
	for _, item := range items {
		res, err := s.Store(ctx, fetcher, base, item)
		if errors.Is(err, core.ErrAuthRequired) {
			return results, stats, err
		}
		if err != nil {
			stats.Errors++
			slog.WarnContext(ctx, "failed to store document",
				"case", item.Case.String(),
				"document_id", item.DocumentID,
				"err", err,
			)
			continue
		}
		if res.Skipped {
			stats.Skipped++
		} else {
			stats.Stored++
		}
		results[item.DocumentID] = res
	}
	return results, stats, nil
}
