package casedb

import (
	"context"
)

const documentColumns = `id, case_id, storage_key, portal_id, source, date, description, document_ref, stored, size, created_at, updated_at`

func scanDocument(row rowScanner) (Document, error) {
	var i Document
	err := row.Scan(
		&i.ID,
		&i.CaseID,
		&i.StorageKey,
		&i.PortalID,
		&i.Source,
		&i.Date,
		&i.Description,
		&i.DocumentRef,
		&i.Stored,
		&i.Size,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getDocumentByStorageKey = `-- name: GetDocumentByStorageKey :one
select ` + documentColumns + ` from documents where case_id = ? and storage_key = ?
`

type GetDocumentByStorageKeyParams struct {
	CaseID     string
	StorageKey string
}

func (q *Queries) GetDocumentByStorageKey(ctx context.Context, arg GetDocumentByStorageKeyParams) (Document, error) {
	return scanDocument(q.db.QueryRowContext(ctx, getDocumentByStorageKey, arg.CaseID, arg.StorageKey))
}

const createDocument = `-- name: CreateDocument :exec
insert into documents (
    id, case_id, storage_key, portal_id, source, date, description, document_ref, stored, size, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateDocumentParams struct {
	ID          string
	CaseID      string
	StorageKey  string
	PortalID    string
	Source      string
	Date        string
	Description string
	DocumentRef string
	Stored      bool
	Size        int64
	CreatedAt   int64
}

func (q *Queries) CreateDocument(ctx context.Context, arg CreateDocumentParams) error {
	_, err := q.db.ExecContext(ctx, createDocument,
		arg.ID,
		arg.CaseID,
		arg.StorageKey,
		arg.PortalID,
		arg.Source,
		arg.Date,
		arg.Description,
		arg.DocumentRef,
		arg.Stored,
		arg.Size,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const updateDocument = `-- name: UpdateDocument :exec
update documents set
    document_ref = case when ? != '' then ? else document_ref end,
    description = case when ? != '' then ? else description end,
    stored = stored or ?,
    size = case when ? > 0 then ? else size end,
    updated_at = ?
where id = ?
`

type UpdateDocumentParams struct {
	ID          string
	DocumentRef string
	Description string
	Stored      bool
	Size        int64
	UpdatedAt   int64
}

// UpdateDocument never clears the stored flag or a known reference.
func (q *Queries) UpdateDocument(ctx context.Context, arg UpdateDocumentParams) error {
	_, err := q.db.ExecContext(ctx, updateDocument,
		arg.DocumentRef,
		arg.DocumentRef,
		arg.Description,
		arg.Description,
		arg.Stored,
		arg.Size,
		arg.Size,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const listDocuments = `-- name: ListDocuments :many
select ` + documentColumns + ` from documents where case_id = ? order by date desc, storage_key
`

func (q *Queries) ListDocuments(ctx context.Context, caseID string) ([]Document, error) {
	rows, err := q.db.QueryContext(ctx, listDocuments, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Document
	for rows.Next() {
		i, err := scanDocument(rows)
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
