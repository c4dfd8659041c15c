package casedb

import (
	"context"
)

const participantColumns = `id, case_id, portal_id, name, raw_role, role, side, document_kind, document_number, document_raw, raw_html, created_at, updated_at`

func scanParticipant(row rowScanner) (Participant, error) {
	var i Participant
	err := row.Scan(
		&i.ID,
		&i.CaseID,
		&i.PortalID,
		&i.Name,
		&i.RawRole,
		&i.Role,
		&i.Side,
		&i.DocumentKind,
		&i.DocumentNumber,
		&i.DocumentRaw,
		&i.RawHtml,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getParticipant = `-- name: GetParticipant :one
select ` + participantColumns + ` from participants where id = ?
`

func (q *Queries) GetParticipant(ctx context.Context, id string) (Participant, error) {
	return scanParticipant(q.db.QueryRowContext(ctx, getParticipant, id))
}

const getParticipantByPortalID = `-- name: GetParticipantByPortalID :one
select ` + participantColumns + ` from participants where case_id = ? and portal_id = ?
`

type GetParticipantByPortalIDParams struct {
	CaseID   string
	PortalID string
}

func (q *Queries) GetParticipantByPortalID(ctx context.Context, arg GetParticipantByPortalIDParams) (Participant, error) {
	return scanParticipant(q.db.QueryRowContext(ctx, getParticipantByPortalID, arg.CaseID, arg.PortalID))
}

const createParticipant = `-- name: CreateParticipant :exec
insert into participants (
    id, case_id, portal_id, name, raw_role, role, side, document_kind, document_number, document_raw, raw_html, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateParticipantParams struct {
	ID             string
	CaseID         string
	PortalID       string
	Name           string
	RawRole        string
	Role           string
	Side           string
	DocumentKind   string
	DocumentNumber string
	DocumentRaw    string
	RawHtml        string
	CreatedAt      int64
}

func (q *Queries) CreateParticipant(ctx context.Context, arg CreateParticipantParams) error {
	_, err := q.db.ExecContext(ctx, createParticipant,
		arg.ID,
		arg.CaseID,
		arg.PortalID,
		arg.Name,
		arg.RawRole,
		arg.Role,
		arg.Side,
		arg.DocumentKind,
		arg.DocumentNumber,
		arg.DocumentRaw,
		arg.RawHtml,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const updateParticipant = `-- name: UpdateParticipant :exec
update participants set
    name = ?,
    raw_role = ?,
    role = ?,
    side = ?,
    document_kind = ?,
    document_number = ?,
    document_raw = ?,
    raw_html = ?,
    updated_at = ?
where id = ?
`

type UpdateParticipantParams struct {
	ID             string
	Name           string
	RawRole        string
	Role           string
	Side           string
	DocumentKind   string
	DocumentNumber string
	DocumentRaw    string
	RawHtml        string
	UpdatedAt      int64
}

func (q *Queries) UpdateParticipant(ctx context.Context, arg UpdateParticipantParams) error {
	_, err := q.db.ExecContext(ctx, updateParticipant,
		arg.Name,
		arg.RawRole,
		arg.Role,
		arg.Side,
		arg.DocumentKind,
		arg.DocumentNumber,
		arg.DocumentRaw,
		arg.RawHtml,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const listParticipantsByCase = `-- name: ListParticipantsByCase :many
select ` + participantColumns + ` from participants where case_id = ? order by created_at, id
`

func (q *Queries) ListParticipantsByCase(ctx context.Context, caseID string) ([]Participant, error) {
	rows, err := q.db.QueryContext(ctx, listParticipantsByCase, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Participant
	for rows.Next() {
		i, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
