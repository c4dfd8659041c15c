package casedb

import (
	"context"
	"database/sql"
)

const movementColumns = `id, case_id, portal_id, date, kind, description, has_document, document_ref, document_id, raw_html, created_at, updated_at`

func scanMovement(row rowScanner) (Movement, error) {
	var i Movement
	err := row.Scan(
		&i.ID,
		&i.CaseID,
		&i.PortalID,
		&i.Date,
		&i.Kind,
		&i.Description,
		&i.HasDocument,
		&i.DocumentRef,
		&i.DocumentID,
		&i.RawHtml,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getMovementByPortalID = `-- name: GetMovementByPortalID :one
select ` + movementColumns + ` from movements where case_id = ? and portal_id = ?
`

type GetMovementByPortalIDParams struct {
	CaseID   string
	PortalID string
}

func (q *Queries) GetMovementByPortalID(ctx context.Context, arg GetMovementByPortalIDParams) (Movement, error) {
	return scanMovement(q.db.QueryRowContext(ctx, getMovementByPortalID, arg.CaseID, arg.PortalID))
}

const createMovement = `-- name: CreateMovement :exec
insert into movements (
    id, case_id, portal_id, date, kind, description, has_document, document_ref, raw_html, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateMovementParams struct {
	ID          string
	CaseID      string
	PortalID    string
	Date        string
	Kind        string
	Description string
	HasDocument bool
	DocumentRef string
	RawHtml     string
	CreatedAt   int64
}

func (q *Queries) CreateMovement(ctx context.Context, arg CreateMovementParams) error {
	_, err := q.db.ExecContext(ctx, createMovement,
		arg.ID,
		arg.CaseID,
		arg.PortalID,
		arg.Date,
		arg.Kind,
		arg.Description,
		arg.HasDocument,
		arg.DocumentRef,
		arg.RawHtml,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const updateMovement = `-- name: UpdateMovement :exec
update movements set
    date = ?,
    kind = ?,
    description = ?,
    has_document = ?,
    document_ref = ?,
    raw_html = ?,
    updated_at = ?
where id = ?
`

type UpdateMovementParams struct {
	ID          string
	Date        string
	Kind        string
	Description string
	HasDocument bool
	DocumentRef string
	RawHtml     string
	UpdatedAt   int64
}

func (q *Queries) UpdateMovement(ctx context.Context, arg UpdateMovementParams) error {
	_, err := q.db.ExecContext(ctx, updateMovement,
		arg.Date,
		arg.Kind,
		arg.Description,
		arg.HasDocument,
		arg.DocumentRef,
		arg.RawHtml,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const setMovementDocument = `-- name: SetMovementDocument :exec
update movements set document_id = ?, updated_at = ? where id = ?
`

type SetMovementDocumentParams struct {
	ID         string
	DocumentID sql.NullString
	UpdatedAt  int64
}

func (q *Queries) SetMovementDocument(ctx context.Context, arg SetMovementDocumentParams) error {
	_, err := q.db.ExecContext(ctx, setMovementDocument, arg.DocumentID, arg.UpdatedAt, arg.ID)
	return err
}

const listMovements = `-- name: ListMovements :many
select ` + movementColumns + ` from movements where case_id = ? order by date desc, portal_id
`

func (q *Queries) ListMovements(ctx context.Context, caseID string) ([]Movement, error) {
	rows, err := q.db.QueryContext(ctx, listMovements, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Movement
	for rows.Next() {
		i, err := scanMovement(rows)
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
