package matching

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"casesync-backend/lib/casedb"
	"casesync-backend/lib/timezone"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Confirm marks the participant's current link as verified by actor.
func (s Service) Confirm(ctx context.Context, participantID, actor string) error {
	ctx, span := tracer.Start(ctx, "Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("participant_id", participantID))

	err := s.inTx(ctx, func(store Store) error {
		p, err := getParticipant(ctx, store, participantID)
		if err != nil {
			return err
		}
		link, ok, err := currentLink(ctx, store, p.ID)
		if err != nil {
			return err
		}
		if !ok || !link.ClientID.Valid {
			return fmt.Errorf("%w: %s", ErrNoLink, p.ID)
		}
		err = writeLink(ctx, store, linkChange{
			participant: p,
			previous:    link.LinkType,
			clientID:    link.ClientID.String,
			linkType:    LinkConfirmed,
			confidence:  1,
			reason:      "confirmed by " + actor,
			action:      ActionConfirmed,
			actor:       actor,
		})
		if err != nil {
			return err
		}
		return ensureClientCase(ctx, store, link.ClientID.String, p)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// ManualLink links the participant to clientID regardless of any existing
// link and relates the client to the case.
func (s Service) ManualLink(ctx context.Context, participantID, clientID, actor string) error {
	ctx, span := tracer.Start(ctx, "ManualLink")
	defer span.End()
	span.SetAttributes(
		attribute.String("participant_id", participantID),
		attribute.String("client_id", clientID),
	)

	err := s.inTx(ctx, func(store Store) error {
		p, err := getParticipant(ctx, store, participantID)
		if err != nil {
			return err
		}
		_, err = store.GetClient(ctx, clientID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
		}
		if err != nil {
			return err
		}
		link, _, err := currentLink(ctx, store, p.ID)
		if err != nil {
			return err
		}
		err = writeLink(ctx, store, linkChange{
			participant: p,
			previous:    link.LinkType,
			clientID:    clientID,
			linkType:    LinkManual,
			confidence:  1,
			reason:      "linked by " + actor,
			action:      ActionManualLinked,
			actor:       actor,
		})
		if err != nil {
			return err
		}
		return ensureClientCase(ctx, store, clientID, p)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Unlink removes the participant's link. The audit entry keeps the client
// that was unlinked and automatic matching never proposes that client for
// the participant again. A manual link still can.
func (s Service) Unlink(ctx context.Context, participantID, actor string) error {
	ctx, span := tracer.Start(ctx, "Unlink")
	defer span.End()

	err := s.inTx(ctx, func(store Store) error {
		p, err := getParticipant(ctx, store, participantID)
		if err != nil {
			return err
		}
		link, ok, err := currentLink(ctx, store, p.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoLink, p.ID)
		}
		err = store.DeleteLink(ctx, p.ID)
		if err != nil {
			return err
		}
		return store.AppendLinkAudit(ctx, casedb.AppendLinkAuditParams{
			ParticipantID: p.ID,
			ClientID:      link.ClientID,
			PreviousType:  link.LinkType,
			Action:        ActionUnlinked,
			Actor:         actor,
			Reason:        "unlinked by " + actor,
			CreatedAt:     timezone.Now().Unix(),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Ignore marks the participant as not being any client, automatic matching
// skips it from then on.
func (s Service) Ignore(ctx context.Context, participantID, actor string) error {
	ctx, span := tracer.Start(ctx, "Ignore")
	defer span.End()

	err := s.inTx(ctx, func(store Store) error {
		p, err := getParticipant(ctx, store, participantID)
		if err != nil {
			return err
		}
		link, _, err := currentLink(ctx, store, p.ID)
		if err != nil {
			return err
		}
		return writeLink(ctx, store, linkChange{
			participant: p,
			previous:    link.LinkType,
			linkType:    LinkIgnored,
			reason:      "ignored by " + actor,
			action:      ActionIgnored,
			actor:       actor,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// CreateClientFromParticipant creates a client from the participant's data
// and links them manually.
func (s Service) CreateClientFromParticipant(ctx context.Context, participantID, actor string) (casedb.Client, error) {
	ctx, span := tracer.Start(ctx, "CreateClientFromParticipant")
	defer span.End()

	var client casedb.Client
	err := s.inTx(ctx, func(store Store) error {
		p, err := getParticipant(ctx, store, participantID)
		if err != nil {
			return err
		}
		link, _, err := currentLink(ctx, store, p.ID)
		if err != nil {
			return err
		}

		params := newClient(p, identOf(p))
		params.AutoCreated = false
		err = store.CreateClient(ctx, params)
		if err != nil {
			return err
		}
		err = writeLink(ctx, store, linkChange{
			participant: p,
			previous:    link.LinkType,
			clientID:    params.ID,
			linkType:    LinkManual,
			confidence:  1,
			reason:      "client created by " + actor,
			action:      ActionClientCreated,
			actor:       actor,
		})
		if err != nil {
			return err
		}
		err = ensureClientCase(ctx, store, params.ID, p)
		if err != nil {
			return err
		}
		client, err = store.GetClient(ctx, params.ID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return casedb.Client{}, err
	}
	return client, nil
}

type RematchStats struct {
	Processed int `json:"processed"`
	Linked    int `json:"linked"`
	Suggested int `json:"suggested"`
	Created   int `json:"created"`
	Skipped   int `json:"skipped"`
}

// RematchCase runs the matcher over every participant of a case in order.
// A participant that fails is logged and counted as processed only.
func (s Service) RematchCase(ctx context.Context, caseID string) (RematchStats, error) {
	ctx, span := tracer.Start(ctx, "RematchCase")
	defer span.End()
	span.SetAttributes(attribute.String("case_id", caseID))

	participants, err := s.qry.ListParticipantsByCase(ctx, caseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RematchStats{}, err
	}

	var stats RematchStats
	for _, p := range participants {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		result, err := s.MatchParticipant(ctx, p.ID)
		if err != nil {
			span.RecordError(err)
			slog.WarnContext(ctx, "failed to match participant", "participant_id", p.ID, "err", err)
			continue
		}
		switch result.Status {
		case StatusLinked:
			stats.Linked++
		case StatusSuggested:
			stats.Suggested++
		case StatusCreated:
			stats.Created++
		case StatusSkipped:
			stats.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("processed", stats.Processed),
		attribute.Int("linked", stats.Linked),
	)
	return stats, nil
}

// CaseLinks lists the participants of a case with their current link.
func (s Service) CaseLinks(ctx context.Context, caseID string) ([]casedb.ListLinksByCaseRow, error) {
	return s.qry.ListLinksByCase(ctx, caseID)
}

// Audit returns the link history of a participant, oldest first.
func (s Service) Audit(ctx context.Context, participantID string) ([]casedb.LinkAudit, error) {
	return s.qry.ListLinkAudit(ctx, participantID)
}

// Clients lists every client, oldest first.
func (s Service) Clients(ctx context.Context) ([]casedb.Client, error) {
	return s.qry.ListClients(ctx)
}
