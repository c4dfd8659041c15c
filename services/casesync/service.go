// Package casesync persists a scraped case and everything listed under it,
// downloading referenced documents and scheduling participant matching.
// Every write is a find-or-create on the record's natural key so syncing the
// same case twice changes nothing.
package casesync

import (
	"context"
	"database/sql"
	"errors"
	"net/url"

	"casesync-backend/lib/casedb"
	"casesync-backend/lib/identifier"
	"casesync-backend/lib/roles"
	"casesync-backend/lib/scrapers/portal/navigator"
	"casesync-backend/lib/scrapers/portal/normalize"
	"casesync-backend/lib/telemetry"
	"casesync-backend/lib/textutil"
	"casesync-backend/lib/timezone"
	"casesync-backend/services/documents"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = telemetry.Tracer("casesync.services.casesync")
var meter = telemetry.Meter("casesync.services.casesync")

var syncCounter, _ = meter.Int64Counter(
	"casesync.syncs",
	metric.WithDescription("Case syncs by outcome."),
)

// Store is the persistence a sync writes through, *casedb.Queries
// implements it.
type Store interface {
	GetCaseByKey(ctx context.Context, arg casedb.GetCaseByKeyParams) (casedb.Case, error)
	CreateCase(ctx context.Context, arg casedb.CreateCaseParams) error
	UpdateCase(ctx context.Context, arg casedb.UpdateCaseParams) error

	GetMovementByPortalID(ctx context.Context, arg casedb.GetMovementByPortalIDParams) (casedb.Movement, error)
	CreateMovement(ctx context.Context, arg casedb.CreateMovementParams) error
	UpdateMovement(ctx context.Context, arg casedb.UpdateMovementParams) error
	SetMovementDocument(ctx context.Context, arg casedb.SetMovementDocumentParams) error

	GetDocumentByStorageKey(ctx context.Context, arg casedb.GetDocumentByStorageKeyParams) (casedb.Document, error)
	CreateDocument(ctx context.Context, arg casedb.CreateDocumentParams) error
	UpdateDocument(ctx context.Context, arg casedb.UpdateDocumentParams) error

	GetParticipantByPortalID(ctx context.Context, arg casedb.GetParticipantByPortalIDParams) (casedb.Participant, error)
	CreateParticipant(ctx context.Context, arg casedb.CreateParticipantParams) error
	UpdateParticipant(ctx context.Context, arg casedb.UpdateParticipantParams) error

	GetAppealByPortalID(ctx context.Context, arg casedb.GetAppealByPortalIDParams) (casedb.Appeal, error)
	CreateAppeal(ctx context.Context, arg casedb.CreateAppealParams) error
	UpdateAppeal(ctx context.Context, arg casedb.UpdateAppealParams) error

	GetRelatedCaseByPortalID(ctx context.Context, arg casedb.GetRelatedCaseByPortalIDParams) (casedb.RelatedCase, error)
	CreateRelatedCase(ctx context.Context, arg casedb.CreateRelatedCaseParams) error
	UpdateRelatedCase(ctx context.Context, arg casedb.UpdateRelatedCaseParams) error
}

var _ Store = (*casedb.Queries)(nil)

// Scheduler queues participant matching, matching.Service implements it.
type Scheduler interface {
	Schedule(ctx context.Context, participantIDs ...string) int
}

type Service struct {
	db        *sql.DB
	qry       *casedb.Queries
	documents documents.Service
	scheduler Scheduler
}

func NewService(database *sql.DB, docs documents.Service, scheduler Scheduler) Service {
	return Service{
		db:        database,
		qry:       casedb.New(database),
		documents: docs,
		scheduler: scheduler,
	}
}

type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

func (c *Counts) add(created bool) {
	if created {
		c.Created++
		return
	}
	c.Updated++
}

type Stats struct {
	Movements        Counts `json:"movements"`
	Documents        Counts `json:"documents"`
	Participants     Counts `json:"participants"`
	Appeals          Counts `json:"appeals"`
	Related          Counts `json:"related"`
	DocumentsStored  int    `json:"documents_stored"`
	DocumentsSkipped int    `json:"documents_skipped"`
	DocumentErrors   int    `json:"document_errors"`
	MatchTasks       int    `json:"match_tasks"`
}

type Input struct {
	UserID  string
	Details navigator.CaseDetails
	// Fetcher downloads documents, nil skips downloading. Document rows are
	// written either way.
	Fetcher documents.Fetcher
	// Base resolves relative document references.
	Base *url.URL
}

type Result struct {
	Case  casedb.Case
	Stats Stats
}

// documentID names the stored object of an entry.
func documentID(e normalize.Entry) string {
	if e.DocumentID != "" {
		return e.DocumentID
	}
	return e.StableID
}

func withDocument(entries []normalize.Entry) []normalize.Entry {
	var out []normalize.Entry
	for _, e := range entries {
		if e.HasDocument && e.DocumentRef != "" {
			out = append(out, e)
		}
	}
	return out
}

// download stores every referenced document before anything is written so
// no transaction is held open across network calls.
func (s Service) download(ctx context.Context, in Input, stats *Stats) (map[string]documents.Result, error) {
	if in.Fetcher == nil {
		return map[string]documents.Result{}, nil
	}

	seen := map[string]struct{}{}
	var items []documents.Item
	for _, e := range append(withDocument(in.Details.Movements), withDocument(in.Details.Documents)...) {
		id := documentID(e)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, documents.Item{
			Case:       in.Details.Key,
			DocumentID: id,
			Ref:        e.DocumentRef,
		})
	}

	results, docStats, err := s.documents.StoreAll(ctx, in.Fetcher, in.Base, items)
	stats.DocumentsStored = docStats.Stored
	stats.DocumentsSkipped = docStats.Skipped
	stats.DocumentErrors = docStats.Errors
	return results, err
}

// Sync persists a scraped case. A session drop while downloading documents
// aborts the sync before anything is written so the caller can
// reauthenticate and retry.
func (s Service) Sync(ctx context.Context, in Input) (Result, error) {
	ctx, span := tracer.Start(ctx, "Sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("case", in.Details.Key.String()),
	)

	fail := func(err error) (Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		syncCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return Result{}, err
	}

	if in.UserID == "" || in.Details.Key.IsZero() {
		return fail(errors.New("sync needs a user and a case key"))
	}

	var stats Stats
	stored, err := s.download(ctx, in, &stats)
	if err != nil {
		return fail(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback()

	w := writer{
		store:  s.qry.WithTx(tx),
		in:     in,
		stored: stored,
		stats:  &stats,
		now:    timezone.Now().Unix(),
	}
	c, err := w.run(ctx)
	if err != nil {
		return fail(err)
	}
	err = tx.Commit()
	if err != nil {
		return fail(err)
	}

	if s.scheduler != nil && len(w.newParticipants) > 0 {
		stats.MatchTasks = s.scheduler.Schedule(ctx, w.newParticipants...)
	}

	syncCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	span.SetAttributes(
		attribute.Int("movements_created", stats.Movements.Created),
		attribute.Int("documents_stored", stats.DocumentsStored),
		attribute.Int("match_tasks", stats.MatchTasks),
	)
	return Result{Case: c, Stats: stats}, nil
}

type writer struct {
	store  Store
	in     Input
	stored map[string]documents.Result
	stats  *Stats
	now    int64

	caseID          string
	newParticipants []string
}

func (w *writer) run(ctx context.Context) (casedb.Case, error) {
	c, err := w.upsertCase(ctx)
	if err != nil {
		return casedb.Case{}, err
	}
	w.caseID = c.ID

	for _, e := range w.in.Details.Movements {
		if err := w.upsertMovement(ctx, e); err != nil {
			return casedb.Case{}, err
		}
	}
	for _, e := range w.in.Details.Documents {
		if e.DocumentRef == "" {
			continue
		}
		if _, err := w.upsertDocument(ctx, e, "documents"); err != nil {
			return casedb.Case{}, err
		}
	}
	for _, p := range w.in.Details.Participants {
		if err := w.upsertParticipant(ctx, p); err != nil {
			return casedb.Case{}, err
		}
	}
	for _, a := range w.in.Details.Appeals {
		if err := w.upsertAppeal(ctx, a); err != nil {
			return casedb.Case{}, err
		}
	}
	for _, r := range w.in.Details.Related {
		if err := w.upsertRelated(ctx, r); err != nil {
			return casedb.Case{}, err
		}
	}
	return c, nil
}

func (w *writer) upsertCase(ctx context.Context) (casedb.Case, error) {
	d := w.in.Details
	key := casedb.GetCaseByKeyParams{UserID: w.in.UserID, CaseKey: d.Key.String()}

	existing, err := w.store.GetCaseByKey(ctx, key)
	switch {
	case err == sql.ErrNoRows:
		err = w.store.CreateCase(ctx, casedb.CreateCaseParams{
			ID:           uuid.NewString(),
			UserID:       w.in.UserID,
			CaseKey:      d.Key.String(),
			RawKey:       d.Candidate.RawKey,
			Title:        d.Title,
			PortalCaseID: d.CaseID,
			LastSyncedAt: w.now,
			CreatedAt:    w.now,
		})
	case err == nil:
		err = w.store.UpdateCase(ctx, casedb.UpdateCaseParams{
			ID:           existing.ID,
			RawKey:       d.Candidate.RawKey,
			Title:        d.Title,
			PortalCaseID: d.CaseID,
			LastSyncedAt: w.now,
			UpdatedAt:    w.now,
		})
	}
	if err != nil {
		return casedb.Case{}, err
	}
	return w.store.GetCaseByKey(ctx, key)
}

func (w *writer) upsertMovement(ctx context.Context, e normalize.Entry) error {
	existing, err := w.store.GetMovementByPortalID(ctx, casedb.GetMovementByPortalIDParams{
		CaseID:   w.caseID,
		PortalID: e.StableID,
	})
	created := err == sql.ErrNoRows
	if err != nil && !created {
		return err
	}

	id := existing.ID
	if created {
		id = uuid.NewString()
		err = w.store.CreateMovement(ctx, casedb.CreateMovementParams{
			ID:          id,
			CaseID:      w.caseID,
			PortalID:    e.StableID,
			Date:        e.Date,
			Kind:        e.Kind,
			Description: e.Description,
			HasDocument: e.HasDocument,
			DocumentRef: e.DocumentRef,
			RawHtml:     e.RawHTML,
			CreatedAt:   w.now,
		})
	} else {
		err = w.store.UpdateMovement(ctx, casedb.UpdateMovementParams{
			ID:          id,
			Date:        e.Date,
			Kind:        e.Kind,
			Description: e.Description,
			HasDocument: e.HasDocument,
			DocumentRef: e.DocumentRef,
			RawHtml:     e.RawHTML,
			UpdatedAt:   w.now,
		})
	}
	if err != nil {
		return err
	}
	w.stats.Movements.add(created)

	if !e.HasDocument || e.DocumentRef == "" {
		return nil
	}
	docID, err := w.upsertDocument(ctx, e, "movements")
	if err != nil {
		return err
	}
	return w.store.SetMovementDocument(ctx, casedb.SetMovementDocumentParams{
		ID:         id,
		DocumentID: sql.NullString{String: docID, Valid: true},
		UpdatedAt:  w.now,
	})
}

// upsertDocument keys documents by object key so an entry listed on both
// the docket and the documents tab is one row.
func (w *writer) upsertDocument(ctx context.Context, e normalize.Entry, source string) (string, error) {
	objectID := documentID(e)
	storageKey := documents.StorageKey(w.in.Details.Key, objectID)
	result, stored := w.stored[objectID]

	existing, err := w.store.GetDocumentByStorageKey(ctx, casedb.GetDocumentByStorageKeyParams{
		CaseID:     w.caseID,
		StorageKey: storageKey,
	})
	if err == sql.ErrNoRows {
		id := uuid.NewString()
		err = w.store.CreateDocument(ctx, casedb.CreateDocumentParams{
			ID:          id,
			CaseID:      w.caseID,
			StorageKey:  storageKey,
			PortalID:    objectID,
			Source:      source,
			Date:        e.Date,
			Description: e.Description,
			DocumentRef: e.DocumentRef,
			Stored:      stored,
			Size:        result.Size,
			CreatedAt:   w.now,
		})
		if err != nil {
			return "", err
		}
		w.stats.Documents.add(true)
		return id, nil
	}
	if err != nil {
		return "", err
	}

	size := existing.Size
	if stored && result.Size > 0 {
		size = result.Size
	}
	err = w.store.UpdateDocument(ctx, casedb.UpdateDocumentParams{
		ID:          existing.ID,
		DocumentRef: e.DocumentRef,
		Description: e.Description,
		Stored:      stored,
		Size:        size,
		UpdatedAt:   w.now,
	})
	if err != nil {
		return "", err
	}
	w.stats.Documents.add(false)
	return existing.ID, nil
}

func (w *writer) upsertParticipant(ctx context.Context, p normalize.Participant) error {
	role := roles.Map(p.RawRole)
	ident := identifier.FromText(p.IdentifierText)
	kind, number := "", ""
	if ident.Kind != identifier.KindUnknown {
		kind, number = string(ident.Kind), ident.Number
	}
	name := textutil.CollapseSpace(p.Name)

	existing, err := w.store.GetParticipantByPortalID(ctx, casedb.GetParticipantByPortalIDParams{
		CaseID:   w.caseID,
		PortalID: p.PortalID,
	})
	if err == sql.ErrNoRows {
		id := uuid.NewString()
		err = w.store.CreateParticipant(ctx, casedb.CreateParticipantParams{
			ID:             id,
			CaseID:         w.caseID,
			PortalID:       p.PortalID,
			Name:           name,
			RawRole:        p.RawRole,
			Role:           string(role.Role),
			Side:           string(role.Side),
			DocumentKind:   kind,
			DocumentNumber: number,
			DocumentRaw:    p.IdentifierText,
			RawHtml:        p.RawHTML,
			CreatedAt:      w.now,
		})
		if err != nil {
			return err
		}
		w.stats.Participants.add(true)
		w.newParticipants = append(w.newParticipants, id)
		return nil
	}
	if err != nil {
		return err
	}

	err = w.store.UpdateParticipant(ctx, casedb.UpdateParticipantParams{
		ID:             existing.ID,
		Name:           name,
		RawRole:        p.RawRole,
		Role:           string(role.Role),
		Side:           string(role.Side),
		DocumentKind:   kind,
		DocumentNumber: number,
		DocumentRaw:    p.IdentifierText,
		RawHtml:        p.RawHTML,
		UpdatedAt:      w.now,
	})
	if err != nil {
		return err
	}
	w.stats.Participants.add(false)
	return nil
}

func (w *writer) upsertAppeal(ctx context.Context, a normalize.Appeal) error {
	existing, err := w.store.GetAppealByPortalID(ctx, casedb.GetAppealByPortalIDParams{
		CaseID:   w.caseID,
		PortalID: a.PortalID,
	})
	if err == sql.ErrNoRows {
		err = w.store.CreateAppeal(ctx, casedb.CreateAppealParams{
			ID:          uuid.NewString(),
			CaseID:      w.caseID,
			PortalID:    a.PortalID,
			Date:        a.Date,
			Kind:        a.Kind,
			Description: a.Description,
			Status:      a.Status,
			RawHtml:     a.RawHTML,
			CreatedAt:   w.now,
		})
		if err != nil {
			return err
		}
		w.stats.Appeals.add(true)
		return nil
	}
	if err != nil {
		return err
	}
	err = w.store.UpdateAppeal(ctx, casedb.UpdateAppealParams{
		ID:          existing.ID,
		Date:        a.Date,
		Kind:        a.Kind,
		Description: a.Description,
		Status:      a.Status,
		RawHtml:     a.RawHTML,
		UpdatedAt:   w.now,
	})
	if err != nil {
		return err
	}
	w.stats.Appeals.add(false)
	return nil
}

func (w *writer) upsertRelated(ctx context.Context, r normalize.RelatedCase) error {
	relatedKey := r.Key
	if relatedKey == "" {
		relatedKey = r.RawKey
	}
	existing, err := w.store.GetRelatedCaseByPortalID(ctx, casedb.GetRelatedCaseByPortalIDParams{
		CaseID:   w.caseID,
		PortalID: r.PortalID,
	})
	if err == sql.ErrNoRows {
		err = w.store.CreateRelatedCase(ctx, casedb.CreateRelatedCaseParams{
			ID:         uuid.NewString(),
			CaseID:     w.caseID,
			PortalID:   r.PortalID,
			RelatedKey: relatedKey,
			Relation:   r.Relation,
			Court:      r.Court,
			Title:      r.Title,
			RawHtml:    r.RawHTML,
			CreatedAt:  w.now,
		})
		if err != nil {
			return err
		}
		w.stats.Related.add(true)
		return nil
	}
	if err != nil {
		return err
	}
	err = w.store.UpdateRelatedCase(ctx, casedb.UpdateRelatedCaseParams{
		ID:         existing.ID,
		RelatedKey: relatedKey,
		Relation:   r.Relation,
		Court:      r.Court,
		Title:      r.Title,
		RawHtml:    r.RawHTML,
		UpdatedAt:  w.now,
	})
	if err != nil {
		return err
	}
	w.stats.Related.add(false)
	return nil
}
