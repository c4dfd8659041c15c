package casedb

import (
	"context"
)

const clientColumns = `id, kind, display_name, last_name, first_name, normalized_name, dni, cuit, auto_created, created_at, updated_at`

func scanClient(row rowScanner) (Client, error) {
	var i Client
	err := row.Scan(
		&i.ID,
		&i.Kind,
		&i.DisplayName,
		&i.LastName,
		&i.FirstName,
		&i.NormalizedName,
		&i.Dni,
		&i.Cuit,
		&i.AutoCreated,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) queryClients(ctx context.Context, query string, args ...interface{}) ([]Client, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Client
	for rows.Next() {
		i, err := scanClient(rows)
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

const getClient = `-- name: GetClient :one
select ` + clientColumns + ` from clients where id = ?
`

func (q *Queries) GetClient(ctx context.Context, id string) (Client, error) {
	return scanClient(q.db.QueryRowContext(ctx, getClient, id))
}

const createClient = `-- name: CreateClient :exec
insert into clients (
    id, kind, display_name, last_name, first_name, normalized_name, dni, cuit, auto_created, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateClientParams struct {
	ID             string
	Kind           string
	DisplayName    string
	LastName       string
	FirstName      string
	NormalizedName string
	Dni            string
	Cuit           string
	AutoCreated    bool
	CreatedAt      int64
}

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) error {
	_, err := q.db.ExecContext(ctx, createClient,
		arg.ID,
		arg.Kind,
		arg.DisplayName,
		arg.LastName,
		arg.FirstName,
		arg.NormalizedName,
		arg.Dni,
		arg.Cuit,
		arg.AutoCreated,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const findClientsByDni = `-- name: FindClientsByDni :many
select ` + clientColumns + ` from clients where dni = ? and dni != '' order by created_at, id
`

func (q *Queries) FindClientsByDni(ctx context.Context, dni string) ([]Client, error) {
	return q.queryClients(ctx, findClientsByDni, dni)
}

const findClientsByCuit = `-- name: FindClientsByCuit :many
select ` + clientColumns + ` from clients where cuit = ? and cuit != '' order by created_at, id
`

func (q *Queries) FindClientsByCuit(ctx context.Context, cuit string) ([]Client, error) {
	return q.queryClients(ctx, findClientsByCuit, cuit)
}

const findClientsByNormalizedName = `-- name: FindClientsByNormalizedName :many
select ` + clientColumns + ` from clients where normalized_name = ? order by created_at, id
`

func (q *Queries) FindClientsByNormalizedName(ctx context.Context, normalizedName string) ([]Client, error) {
	return q.queryClients(ctx, findClientsByNormalizedName, normalizedName)
}

const listClients = `-- name: ListClients :many
select ` + clientColumns + ` from clients order by created_at, id
`

func (q *Queries) ListClients(ctx context.Context) ([]Client, error) {
	return q.queryClients(ctx, listClients)
}

const ensureClientCase = `-- name: EnsureClientCase :exec
insert into client_cases (client_id, case_id, role, created_at)
values (?, ?, ?, ?)
on conflict (client_id, case_id) do nothing
`

type EnsureClientCaseParams struct {
	ClientID  string
	CaseID    string
	Role      string
	CreatedAt int64
}

func (q *Queries) EnsureClientCase(ctx context.Context, arg EnsureClientCaseParams) error {
	_, err := q.db.ExecContext(ctx, ensureClientCase,
		arg.ClientID,
		arg.CaseID,
		arg.Role,
		arg.CreatedAt,
	)
	return err
}

const listClientCases = `-- name: ListClientCases :many
select client_id, case_id, role, created_at from client_cases where client_id = ? order by created_at, case_id
`

func (q *Queries) ListClientCases(ctx context.Context, clientID string) ([]ClientCase, error) {
	rows, err := q.db.QueryContext(ctx, listClientCases, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ClientCase
	for rows.Next() {
		var i ClientCase
		if err := rows.Scan(&i.ClientID, &i.CaseID, &i.Role, &i.CreatedAt); err != nil {
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
