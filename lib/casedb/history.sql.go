package casedb

import (
	"context"
)

const appealColumns = `id, case_id, portal_id, date, kind, description, status, raw_html, created_at, updated_at`

func scanAppeal(row rowScanner) (Appeal, error) {
	var i Appeal
	err := row.Scan(
		&i.ID,
		&i.CaseID,
		&i.PortalID,
		&i.Date,
		&i.Kind,
		&i.Description,
		&i.Status,
		&i.RawHtml,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getAppealByPortalID = `-- name: GetAppealByPortalID :one
select ` + appealColumns + ` from appeals where case_id = ? and portal_id = ?
`

type GetAppealByPortalIDParams struct {
	CaseID   string
	PortalID string
}

func (q *Queries) GetAppealByPortalID(ctx context.Context, arg GetAppealByPortalIDParams) (Appeal, error) {
	return scanAppeal(q.db.QueryRowContext(ctx, getAppealByPortalID, arg.CaseID, arg.PortalID))
}

const createAppeal = `-- name: CreateAppeal :exec
insert into appeals (
    id, case_id, portal_id, date, kind, description, status, raw_html, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateAppealParams struct {
	ID          string
	CaseID      string
	PortalID    string
	Date        string
	Kind        string
	Description string
	Status      string
	RawHtml     string
	CreatedAt   int64
}

func (q *Queries) CreateAppeal(ctx context.Context, arg CreateAppealParams) error {
	_, err := q.db.ExecContext(ctx, createAppeal,
		arg.ID,
		arg.CaseID,
		arg.PortalID,
		arg.Date,
		arg.Kind,
		arg.Description,
		arg.Status,
		arg.RawHtml,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const updateAppeal = `-- name: UpdateAppeal :exec
update appeals set
    date = ?,
    kind = ?,
    description = ?,
    status = ?,
    raw_html = ?,
    updated_at = ?
where id = ?
`

type UpdateAppealParams struct {
	ID          string
	Date        string
	Kind        string
	Description string
	Status      string
	RawHtml     string
	UpdatedAt   int64
}

func (q *Queries) UpdateAppeal(ctx context.Context, arg UpdateAppealParams) error {
	_, err := q.db.ExecContext(ctx, updateAppeal,
		arg.Date,
		arg.Kind,
		arg.Description,
		arg.Status,
		arg.RawHtml,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const listAppeals = `-- name: ListAppeals :many
select ` + appealColumns + ` from appeals where case_id = ? order by date desc, portal_id
`

func (q *Queries) ListAppeals(ctx context.Context, caseID string) ([]Appeal, error) {
	rows, err := q.db.QueryContext(ctx, listAppeals, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Appeal
	for rows.Next() {
		i, err := scanAppeal(rows)
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

const relatedCaseColumns = `id, case_id, portal_id, related_key, relation, court, title, raw_html, created_at, updated_at`

func scanRelatedCase(row rowScanner) (RelatedCase, error) {
	var i RelatedCase
	err := row.Scan(
		&i.ID,
		&i.CaseID,
		&i.PortalID,
		&i.RelatedKey,
		&i.Relation,
		&i.Court,
		&i.Title,
		&i.RawHtml,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRelatedCaseByPortalID = `-- name: GetRelatedCaseByPortalID :one
select ` + relatedCaseColumns + ` from related_cases where case_id = ? and portal_id = ?
`

type GetRelatedCaseByPortalIDParams struct {
	CaseID   string
	PortalID string
}

func (q *Queries) GetRelatedCaseByPortalID(ctx context.Context, arg GetRelatedCaseByPortalIDParams) (RelatedCase, error) {
	return scanRelatedCase(q.db.QueryRowContext(ctx, getRelatedCaseByPortalID, arg.CaseID, arg.PortalID))
}

const createRelatedCase = `-- name: CreateRelatedCase :exec
insert into related_cases (
    id, case_id, portal_id, related_key, relation, court, title, raw_html, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateRelatedCaseParams struct {
	ID         string
	CaseID     string
	PortalID   string
	RelatedKey string
	Relation   string
	Court      string
	Title      string
	RawHtml    string
	CreatedAt  int64
}

func (q *Queries) CreateRelatedCase(ctx context.Context, arg CreateRelatedCaseParams) error {
	_, err := q.db.ExecContext(ctx, createRelatedCase,
		arg.ID,
		arg.CaseID,
		arg.PortalID,
		arg.RelatedKey,
		arg.Relation,
		arg.Court,
		arg.Title,
		arg.RawHtml,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const updateRelatedCase = `-- name: UpdateRelatedCase :exec
update related_cases set
    related_key = ?,
    relation = ?,
    court = ?,
    title = ?,
    raw_html = ?,
    updated_at = ?
where id = ?
`

type UpdateRelatedCaseParams struct {
	ID         string
	RelatedKey string
	Relation   string
	Court      string
	Title      string
	RawHtml    string
	UpdatedAt  int64
}

func (q *Queries) UpdateRelatedCase(ctx context.Context, arg UpdateRelatedCaseParams) error {
	_, err := q.db.ExecContext(ctx, updateRelatedCase,
		arg.RelatedKey,
		arg.Relation,
		arg.Court,
		arg.Title,
		arg.RawHtml,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const listRelatedCases = `-- name: ListRelatedCases :many
select ` + relatedCaseColumns + ` from related_cases where case_id = ? order by related_key
`

func (q *Queries) ListRelatedCases(ctx context.Context, caseID string) ([]RelatedCase, error) {
	rows, err := q.db.QueryContext(ctx, listRelatedCases, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RelatedCase
	for rows.Next() {
		i, err := scanRelatedCase(rows)
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
