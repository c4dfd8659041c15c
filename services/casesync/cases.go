package casesync

import (
	"context"
	"database/sql"
	"errors"

	"casesync-backend/lib/casedb"
	"casesync-backend/lib/casekey"
)

var ErrCaseNotFound = errors.New("case not found")

// Snapshot is a stored case with its records.
type Snapshot struct {
	Case         casedb.Case
	Movements    []casedb.Movement
	Documents    []casedb.Document
	Participants []casedb.Participant
	Appeals      []casedb.Appeal
	Related      []casedb.RelatedCase
}

func (s Service) Cases(ctx context.Context, userID string) ([]casedb.Case, error) {
	return s.qry.ListCases(ctx, userID)
}

// Snapshot loads a stored case by any spelling of its key.
func (s Service) Snapshot(ctx context.Context, userID, rawKey string) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Snapshot")
	defer span.End()

	c, err := s.qry.GetCaseByKey(ctx, casedb.GetCaseByKeyParams{
		UserID:  userID,
		CaseKey: casekey.Normalize(rawKey),
	})
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrCaseNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Case: c}
	snap.Movements, err = s.qry.ListMovements(ctx, c.ID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Documents, err = s.qry.ListDocuments(ctx, c.ID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Participants, err = s.qry.ListParticipantsByCase(ctx, c.ID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Appeals, err = s.qry.ListAppeals(ctx, c.ID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Related, err = s.qry.ListRelatedCases(ctx, c.ID)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
