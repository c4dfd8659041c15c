// Package matching resolves case participants to clients with tiered,
// confidence scored signals and keeps an audit trail of every link change.
package matching

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"casesync-backend/lib/casedb"
	"casesync-backend/lib/identifier"
	"casesync-backend/lib/roles"
	"casesync-backend/lib/scrapers/portal/normalize"
	"casesync-backend/lib/tasks"
	"casesync-backend/lib/telemetry"
	"casesync-backend/lib/textutil"
	"casesync-backend/lib/timezone"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = telemetry.Tracer("casesync.services.matching")
var meter = telemetry.Meter("casesync.services.matching")

var matchCounter, _ = meter.Int64Counter(
	"matching.results",
	metric.WithDescription("Participant matching runs by resulting status."),
)

// TaskMatchParticipant is the task kind consumed by HandleTask.
const TaskMatchParticipant = "match_participant"

type MatchTask struct {
	ParticipantID string `json:"participant_id"`
}

type LinkType string

const (
	LinkAutoHigh  LinkType = "AUTO_HIGH_CONFIDENCE"
	LinkAutoLow   LinkType = "AUTO_LOW_CONFIDENCE"
	LinkConfirmed LinkType = "CONFIRMED"
	LinkManual    LinkType = "MANUAL"
	LinkIgnored   LinkType = "IGNORED"
)

// Locked reports whether the link was set by a person and must not be
// touched by automatic matching.
func (t LinkType) Locked() bool {
	return t == LinkConfirmed || t == LinkManual || t == LinkIgnored
}

const (
	ActionAutoLinked    = "AUTO_LINKED"
	ActionAutoMatched   = "AUTO_MATCHED"
	ActionConfirmed     = "CONFIRMED"
	ActionManualLinked  = "MANUAL_LINKED"
	ActionUnlinked      = "UNLINKED"
	ActionIgnored       = "IGNORED"
	ActionClientCreated = "CLIENT_CREATED"
)

// ActorSystem is recorded for automatic decisions.
const ActorSystem = "system"

type Status string

const (
	StatusLinked    Status = "LINKED"
	StatusSuggested Status = "SUGGESTED"
	StatusCreated   Status = "CREATED"
	StatusSkipped   Status = "SKIPPED"
	StatusUnchanged Status = "UNCHANGED"
	StatusNoMatch   Status = "NO_MATCH"
)

type Result struct {
	Status     Status
	ClientID   string
	LinkType   LinkType
	Confidence float64
	Reason     string
	Candidates []Candidate
}

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrNoLink              = errors.New("participant has no client link")
	ErrCaseNotFound        = errors.New("case not found")
)

// Store is the persistence the matcher needs, *casedb.Queries implements it.
type Store interface {
	GetCase(ctx context.Context, id string) (casedb.Case, error)
	GetParticipant(ctx context.Context, id string) (casedb.Participant, error)
	GetParticipantByPortalID(ctx context.Context, arg casedb.GetParticipantByPortalIDParams) (casedb.Participant, error)
	CreateParticipant(ctx context.Context, arg casedb.CreateParticipantParams) error
	ListParticipantsByCase(ctx context.Context, caseID string) ([]casedb.Participant, error)

	GetClient(ctx context.Context, id string) (casedb.Client, error)
	CreateClient(ctx context.Context, arg casedb.CreateClientParams) error
	FindClientsByDni(ctx context.Context, dni string) ([]casedb.Client, error)
	FindClientsByCuit(ctx context.Context, cuit string) ([]casedb.Client, error)
	FindClientsByNormalizedName(ctx context.Context, normalizedName string) ([]casedb.Client, error)
	ListClients(ctx context.Context) ([]casedb.Client, error)
	EnsureClientCase(ctx context.Context, arg casedb.EnsureClientCaseParams) error

	GetLink(ctx context.Context, participantID string) (casedb.ParticipantClientLink, error)
	UpsertLink(ctx context.Context, arg casedb.UpsertLinkParams) error
	DeleteLink(ctx context.Context, participantID string) error
	AppendLinkAudit(ctx context.Context, arg casedb.AppendLinkAuditParams) error
	ListUnlinkedClients(ctx context.Context, participantID string) ([]string, error)
}

var _ Store = (*casedb.Queries)(nil)

type Service struct {
	db    *sql.DB
	qry   *casedb.Queries
	queue tasks.Queue
}

func NewService(database *sql.DB, queue tasks.Queue) Service {
	return Service{
		db:    database,
		qry:   casedb.New(database),
		queue: queue,
	}
}

func (s Service) inTx(ctx context.Context, fn func(store Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = fn(s.qry.WithTx(tx))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func getParticipant(ctx context.Context, store Store, id string) (casedb.Participant, error) {
	p, err := store.GetParticipant(ctx, id)
	if err == sql.ErrNoRows {
		return casedb.Participant{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	return p, err
}

// currentLink returns the participant's link, ok is false without one.
func currentLink(ctx context.Context, store Store, participantID string) (casedb.ParticipantClientLink, bool, error) {
	link, err := store.GetLink(ctx, participantID)
	if err == sql.ErrNoRows {
		return casedb.ParticipantClientLink{}, false, nil
	}
	if err != nil {
		return casedb.ParticipantClientLink{}, false, err
	}
	return link, true, nil
}

type linkChange struct {
	participant casedb.Participant
	previous    string
	clientID    string
	linkType    LinkType
	confidence  float64
	reason      string
	action      string
	actor       string
}

// writeLink stores the link and its audit record together.
func writeLink(ctx context.Context, store Store, change linkChange) error {
	now := timezone.Now().Unix()
	err := store.UpsertLink(ctx, casedb.UpsertLinkParams{
		ParticipantID: change.participant.ID,
		ClientID:      nullString(change.clientID),
		LinkType:      string(change.linkType),
		Confidence:    change.confidence,
		Reason:        change.reason,
		Now:           now,
	})
	if err != nil {
		return err
	}
	return store.AppendLinkAudit(ctx, casedb.AppendLinkAuditParams{
		ParticipantID: change.participant.ID,
		ClientID:      nullString(change.clientID),
		PreviousType:  change.previous,
		NewType:       string(change.linkType),
		Action:        change.action,
		Actor:         change.actor,
		Reason:        change.reason,
		Confidence:    change.confidence,
		CreatedAt:     now,
	})
}

func ensureClientCase(ctx context.Context, store Store, clientID string, p casedb.Participant) error {
	return store.EnsureClientCase(ctx, casedb.EnsureClientCaseParams{
		ClientID:  clientID,
		CaseID:    p.CaseID,
		Role:      p.Role,
		CreatedAt: timezone.Now().Unix(),
	})
}

func identOf(p casedb.Participant) identifier.Parsed {
	if p.DocumentNumber != "" {
		return identifier.Parsed{
			Kind:   identifier.Kind(p.DocumentKind),
			Number: p.DocumentNumber,
			Raw:    p.DocumentRaw,
		}
	}
	return identifier.FromText(p.DocumentRaw)
}

// candidates looks clients up by index first and only scans every client
// for fuzzy names when no indexed lookup produced a strong match.
func candidates(ctx context.Context, store Store, s subject) ([]Candidate, error) {
	var pool []casedb.Client
	add := func(clients []casedb.Client, err error) error {
		if err != nil {
			return err
		}
		pool = append(pool, clients...)
		return nil
	}

	if s.ident.Number != "" {
		if err := add(store.FindClientsByDni(ctx, s.ident.Number)); err != nil {
			return nil, err
		}
	}
	if dni, ok := s.ident.EmbeddedDNI(); ok {
		if err := add(store.FindClientsByDni(ctx, dni)); err != nil {
			return nil, err
		}
	}
	if s.ident.IsTaxID() {
		if err := add(store.FindClientsByCuit(ctx, s.ident.Number)); err != nil {
			return nil, err
		}
	}
	if s.sorted != "" {
		if err := add(store.FindClientsByNormalizedName(ctx, s.sorted)); err != nil {
			return nil, err
		}
	}

	ranked := rank(s, pool)
	if len(ranked) > 0 && ranked[0].Confidence >= HighThreshold {
		return ranked, nil
	}
	if err := add(store.ListClients(ctx)); err != nil {
		return nil, err
	}
	return rank(s, pool), nil
}

// newClient builds a client from a participant's name and document.
func newClient(p casedb.Participant, ident identifier.Parsed) casedb.CreateClientParams {
	params := casedb.CreateClientParams{
		ID:             uuid.NewString(),
		Kind:           "PERSON",
		DisplayName:    textutil.CollapseSpace(p.Name),
		NormalizedName: textutil.SortedTokens(p.Name),
		AutoCreated:    true,
		CreatedAt:      timezone.Now().Unix(),
	}
	if isOrganization(p.Name, ident) {
		params.Kind = "ORGANIZATION"
	} else {
		params.LastName, params.FirstName = splitName(p.Name)
	}

	switch {
	case ident.Kind == identifier.KindDNI:
		params.Dni = ident.Number
	case ident.IsTaxID():
		params.Cuit = ident.Number
		if dni, ok := ident.EmbeddedDNI(); ok && params.Kind == "PERSON" {
			params.Dni = dni
		}
	}
	return params
}

// withoutUnlinked drops candidates a person has unlinked from the
// participant before, reporting how many were dropped.
func withoutUnlinked(ctx context.Context, store Store, participantID string, found []Candidate) ([]Candidate, int, error) {
	unlinked, err := store.ListUnlinkedClients(ctx, participantID)
	if err != nil {
		return nil, 0, err
	}
	if len(unlinked) == 0 {
		return found, 0, nil
	}
	kept := found[:0]
	for _, c := range found {
		if slices.Contains(unlinked, c.Client.ID) {
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(found) - len(kept), nil
}

func (s Service) matchInStore(ctx context.Context, store Store, participantID string) (Result, error) {
	p, err := getParticipant(ctx, store, participantID)
	if err != nil {
		return Result{}, err
	}
	link, linked, err := currentLink(ctx, store, p.ID)
	if err != nil {
		return Result{}, err
	}
	if linked && LinkType(link.LinkType).Locked() {
		return Result{
			Status:     StatusSkipped,
			ClientID:   link.ClientID.String,
			LinkType:   LinkType(link.LinkType),
			Confidence: link.Confidence,
			Reason:     link.Reason,
		}, nil
	}

	ident := identOf(p)
	found, err := candidates(ctx, store, newSubject(p.Name, ident))
	if err != nil {
		return Result{}, err
	}
	found, rejected, err := withoutUnlinked(ctx, store, p.ID, found)
	if err != nil {
		return Result{}, err
	}

	if len(found) == 0 {
		if linked {
			return Result{
				Status:     StatusUnchanged,
				ClientID:   link.ClientID.String,
				LinkType:   LinkType(link.LinkType),
				Confidence: link.Confidence,
				Reason:     link.Reason,
			}, nil
		}
		if roles.Map(p.RawRole).IsJudicial() || p.Side == string(roles.SideJudicial) {
			return Result{Status: StatusNoMatch}, nil
		}
		if rejected > 0 {
			return Result{Status: StatusNoMatch, Reason: "every matching client was unlinked by a person"}, nil
		}

		params := newClient(p, ident)
		err = store.CreateClient(ctx, params)
		if err != nil {
			return Result{}, err
		}
		change := linkChange{
			participant: p,
			clientID:    params.ID,
			linkType:    LinkAutoHigh,
			confidence:  1,
			reason:      "no existing client matched, client created from participant",
			action:      ActionAutoLinked,
			actor:       ActorSystem,
		}
		if err := writeLink(ctx, store, change); err != nil {
			return Result{}, err
		}
		if err := ensureClientCase(ctx, store, params.ID, p); err != nil {
			return Result{}, err
		}
		return Result{
			Status:     StatusCreated,
			ClientID:   params.ID,
			LinkType:   LinkAutoHigh,
			Confidence: 1,
			Reason:     change.reason,
		}, nil
	}

	top := found[0]
	linkType := LinkAutoLow
	status := StatusSuggested
	if top.Confidence >= HighThreshold {
		linkType = LinkAutoHigh
		status = StatusLinked
	}

	// automatic links only ever move to a better match
	if linked && top.Confidence <= link.Confidence {
		return Result{
			Status:     StatusUnchanged,
			ClientID:   link.ClientID.String,
			LinkType:   LinkType(link.LinkType),
			Confidence: link.Confidence,
			Reason:     link.Reason,
			Candidates: found,
		}, nil
	}

	change := linkChange{
		participant: p,
		previous:    link.LinkType,
		clientID:    top.Client.ID,
		linkType:    linkType,
		confidence:  top.Confidence,
		reason:      top.Reason,
		action:      ActionAutoMatched,
		actor:       ActorSystem,
	}
	if err := writeLink(ctx, store, change); err != nil {
		return Result{}, err
	}
	if linkType == LinkAutoHigh {
		if err := ensureClientCase(ctx, store, top.Client.ID, p); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Status:     status,
		ClientID:   top.Client.ID,
		LinkType:   linkType,
		Confidence: top.Confidence,
		Reason:     top.Reason,
		Candidates: found,
	}, nil
}

// MatchParticipant runs the matcher for one participant. It is idempotent:
// locked links are skipped and automatic links only change for a better
// candidate.
func (s Service) MatchParticipant(ctx context.Context, participantID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "MatchParticipant")
	defer span.End()
	span.SetAttributes(attribute.String("participant_id", participantID))

	var result Result
	err := s.inTx(ctx, func(store Store) error {
		var err error
		result, err = s.matchInStore(ctx, store, participantID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	matchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(result.Status))))
	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// HandleTask is the queue consumer for TaskMatchParticipant.
func (s Service) HandleTask(ctx context.Context, task tasks.Task) error {
	if task.Kind != TaskMatchParticipant {
		slog.WarnContext(ctx, "ignoring unknown task", "kind", task.Kind, "id", task.ID)
		return nil
	}
	var payload MatchTask
	err := task.Decode(&payload)
	if err != nil {
		return err
	}
	result, err := s.MatchParticipant(ctx, payload.ParticipantID)
	if errors.Is(err, ErrParticipantNotFound) {
		slog.WarnContext(ctx, "participant of match task is gone", "participant_id", payload.ParticipantID)
		return nil
	}
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "matched participant",
		"participant_id", payload.ParticipantID,
		"status", result.Status,
		"confidence", result.Confidence,
	)
	return nil
}

// Schedule enqueues matching for participants, failures are logged since
// a later rematch covers them.
func (s Service) Schedule(ctx context.Context, participantIDs ...string) int {
	scheduled := 0
	for _, id := range participantIDs {
		err := s.queue.Enqueue(ctx, TaskMatchParticipant, MatchTask{ParticipantID: id})
		if err != nil {
			slog.WarnContext(ctx, "failed to schedule matching", "participant_id", id, "err", err)
			continue
		}
		scheduled++
	}
	return scheduled
}

type ParticipantInput struct {
	CaseID         string
	PortalID       string
	Name           string
	RawRole        string
	IdentifierText string
}

// CreateParticipantEntry finds or creates a participant by (case, portal
// id) and schedules matching when it was created.
func (s Service) CreateParticipantEntry(ctx context.Context, in ParticipantInput) (casedb.Participant, bool, error) {
	ctx, span := tracer.Start(ctx, "CreateParticipantEntry")
	defer span.End()

	if in.PortalID == "" {
		in.PortalID = normalize.StableID(in.CaseID, in.RawRole, in.Name)
	}

	var (
		participant casedb.Participant
		created     bool
	)
	err := s.inTx(ctx, func(store Store) error {
		if _, err := store.GetCase(ctx, in.CaseID); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", ErrCaseNotFound, in.CaseID)
			}
			return err
		}

		existing, err := store.GetParticipantByPortalID(ctx, casedb.GetParticipantByPortalIDParams{
			CaseID:   in.CaseID,
			PortalID: in.PortalID,
		})
		if err == nil {
			participant = existing
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		role := roles.Map(in.RawRole)
		ident := identifier.FromText(in.IdentifierText)
		params := casedb.CreateParticipantParams{
			ID:          uuid.NewString(),
			CaseID:      in.CaseID,
			PortalID:    in.PortalID,
			Name:        textutil.CollapseSpace(in.Name),
			RawRole:     in.RawRole,
			Role:        string(role.Role),
			Side:        string(role.Side),
			DocumentRaw: in.IdentifierText,
			CreatedAt:   timezone.Now().Unix(),
		}
		if ident.Kind != identifier.KindUnknown {
			params.DocumentKind = string(ident.Kind)
			params.DocumentNumber = ident.Number
		}
		err = store.CreateParticipant(ctx, params)
		if err != nil {
			return err
		}
		participant, err = store.GetParticipant(ctx, params.ID)
		created = true
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return casedb.Participant{}, false, err
	}

	if created {
		s.Schedule(ctx, participant.ID)
	}
	return participant, created, nil
}

// EnsureClientCase relates a client to a case, doing nothing if they are
// already related.
func (s Service) EnsureClientCase(ctx context.Context, clientID, caseID, role string) error {
	return s.inTx(ctx, func(store Store) error {
		if _, err := store.GetClient(ctx, clientID); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
			}
			return err
		}
		return store.EnsureClientCase(ctx, casedb.EnsureClientCaseParams{
			ClientID:  clientID,
			CaseID:    caseID,
			Role:      role,
			CreatedAt: timezone.Now().Unix(),
		})
	})
}
