package casedb

import (
	"context"
	"database/sql"
)

const getLink = `-- name: GetLink :one
select participant_id, client_id, link_type, confidence, reason, created_at, updated_at
from participant_client_links where participant_id = ?
`

func (q *Queries) GetLink(ctx context.Context, participantID string) (ParticipantClientLink, error) {
	row := q.db.QueryRowContext(ctx, getLink, participantID)
	var i ParticipantClientLink
	err := row.Scan(
		&i.ParticipantID,
		&i.ClientID,
		&i.LinkType,
		&i.Confidence,
		&i.Reason,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertLink = `-- name: UpsertLink :exec
insert into participant_client_links (
    participant_id, client_id, link_type, confidence, reason, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?)
on conflict (participant_id) do update set
    client_id = excluded.client_id,
    link_type = excluded.link_type,
    confidence = excluded.confidence,
    reason = excluded.reason,
    updated_at = excluded.updated_at
`

type UpsertLinkParams struct {
	ParticipantID string
	ClientID      sql.NullString
	LinkType      string
	Confidence    float64
	Reason        string
	Now           int64
}

func (q *Queries) UpsertLink(ctx context.Context, arg UpsertLinkParams) error {
	_, err := q.db.ExecContext(ctx, upsertLink,
		arg.ParticipantID,
		arg.ClientID,
		arg.LinkType,
		arg.Confidence,
		arg.Reason,
		arg.Now,
		arg.Now,
	)
	return err
}

const deleteLink = `-- name: DeleteLink :exec
delete from participant_client_links where participant_id = ?
`

func (q *Queries) DeleteLink(ctx context.Context, participantID string) error {
	_, err := q.db.ExecContext(ctx, deleteLink, participantID)
	return err
}

const listLinksByCase = `-- name: ListLinksByCase :many
select
    participants.id, participants.name, participants.raw_role, participants.role,
    participant_client_links.client_id, participant_client_links.link_type,
    participant_client_links.confidence, participant_client_links.reason
from participants
left join participant_client_links on participant_client_links.participant_id = participants.id
where participants.case_id = ?
order by participants.created_at, participants.id
`

type ListLinksByCaseRow struct {
	ParticipantID string
	Name          string
	RawRole       string
	Role          string
	ClientID      sql.NullString
	LinkType      sql.NullString
	Confidence    sql.NullFloat64
	Reason        sql.NullString
}

func (q *Queries) ListLinksByCase(ctx context.Context, caseID string) ([]ListLinksByCaseRow, error) {
	rows, err := q.db.QueryContext(ctx, listLinksByCase, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListLinksByCaseRow
	for rows.Next() {
		var i ListLinksByCaseRow
		if err := rows.Scan(
			&i.ParticipantID,
			&i.Name,
			&i.RawRole,
			&i.Role,
			&i.ClientID,
			&i.LinkType,
			&i.Confidence,
			&i.Reason,
		); err != nil {
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

const appendLinkAudit = `-- name: AppendLinkAudit :exec
insert into link_audit (
    participant_id, client_id, previous_type, new_type, action, actor, reason, confidence, created_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type AppendLinkAuditParams struct {
	ParticipantID string
	ClientID      sql.NullString
	PreviousType  string
	NewType       string
	Action        string
	Actor         string
	Reason        string
	Confidence    float64
	CreatedAt     int64
}

func (q *Queries) AppendLinkAudit(ctx context.Context, arg AppendLinkAuditParams) error {
	_, err := q.db.ExecContext(ctx, appendLinkAudit,
		arg.ParticipantID,
		arg.ClientID,
		arg.PreviousType,
		arg.NewType,
		arg.Action,
		arg.Actor,
		arg.Reason,
		arg.Confidence,
		arg.CreatedAt,
	)
	return err
}

const listLinkAudit = `-- name: ListLinkAudit :many
select id, participant_id, client_id, previous_type, new_type, action, actor, reason, confidence, created_at
from link_audit where participant_id = ? order by id
`

func (q *Queries) ListLinkAudit(ctx context.Context, participantID string) ([]LinkAudit, error) {
	rows, err := q.db.QueryContext(ctx, listLinkAudit, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LinkAudit
	for rows.Next() {
		var i LinkAudit
		if err := rows.Scan(
			&i.ID,
			&i.ParticipantID,
			&i.ClientID,
			&i.PreviousType,
			&i.NewType,
			&i.Action,
			&i.Actor,
			&i.Reason,
			&i.Confidence,
			&i.CreatedAt,
		); err != nil {
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

const listUnlinkedClients = `-- name: ListUnlinkedClients :many
select distinct client_id from link_audit
where participant_id = ? and action = 'UNLINKED' and client_id is not null
`

func (q *Queries) ListUnlinkedClients(ctx context.Context, participantID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUnlinkedClients, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var clientID string
		if err := rows.Scan(&clientID); err != nil {
			return nil, err
		}
		items = append(items, clientID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
