package casedb

import (
	"context"
)

const caseColumns = `id, user_id, case_key, raw_key, title, portal_case_id, last_synced_at, created_at, updated_at`

func scanCase(row rowScanner) (Case, error) {
	var i Case
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CaseKey,
		&i.RawKey,
		&i.Title,
		&i.PortalCaseID,
		&i.LastSyncedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getCase = `-- name: GetCase :one
select ` + caseColumns + ` from cases where id = ?
`

func (q *Queries) GetCase(ctx context.Context, id string) (Case, error) {
	return scanCase(q.db.QueryRowContext(ctx, getCase, id))
}

const getCaseByKey = `-- name: GetCaseByKey :one
select ` + caseColumns + ` from cases where user_id = ? and case_key = ?
`

type GetCaseByKeyParams struct {
	UserID  string
	CaseKey string
}

func (q *Queries) GetCaseByKey(ctx context.Context, arg GetCaseByKeyParams) (Case, error) {
	return scanCase(q.db.QueryRowContext(ctx, getCaseByKey, arg.UserID, arg.CaseKey))
}

const createCase = `-- name: CreateCase :exec
insert into cases (
    id, user_id, case_key, raw_key, title, portal_case_id, last_synced_at, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateCaseParams struct {
	ID           string
	UserID       string
	CaseKey      string
	RawKey       string
	Title        string
	PortalCaseID string
	LastSyncedAt int64
	CreatedAt    int64
}

func (q *Queries) CreateCase(ctx context.Context, arg CreateCaseParams) error {
	_, err := q.db.ExecContext(ctx, createCase,
		arg.ID,
		arg.UserID,
		arg.CaseKey,
		arg.RawKey,
		arg.Title,
		arg.PortalCaseID,
		arg.LastSyncedAt,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const updateCase = `-- name: UpdateCase :exec
update cases set
    raw_key = ?,
    title = case when ? != '' then ? else title end,
    portal_case_id = ?,
    last_synced_at = ?,
    updated_at = ?
where id = ?
`

type UpdateCaseParams struct {
	ID           string
	RawKey       string
	Title        string
	PortalCaseID string
	LastSyncedAt int64
	UpdatedAt    int64
}

// UpdateCase keeps the stored title when the new one is empty.
func (q *Queries) UpdateCase(ctx context.Context, arg UpdateCaseParams) error {
	_, err := q.db.ExecContext(ctx, updateCase,
		arg.RawKey,
		arg.Title,
		arg.Title,
		arg.PortalCaseID,
		arg.LastSyncedAt,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const listCases = `-- name: ListCases :many
select ` + caseColumns + ` from cases where user_id = ? order by case_key
`

func (q *Queries) ListCases(ctx context.Context, userID string) ([]Case, error) {
	rows, err := q.db.QueryContext(ctx, listCases, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Case
	for rows.Next() {
		i, err := scanCase(rows)
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
