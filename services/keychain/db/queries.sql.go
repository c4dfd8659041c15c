package db

import (
	"context"
)

const getAccount = `-- name: GetAccount :one
select user_id, username, password_sealed, needs_reauth, sync_error_count, last_error, last_error_at, last_auth_at, created_at, updated_at
from portal_accounts
where user_id = ?
`

func (q *Queries) GetAccount(ctx context.Context, userID string) (PortalAccount, error) {
	row := q.db.QueryRowContext(ctx, getAccount, userID)
	var i PortalAccount
	err := row.Scan(
		&i.UserID,
		&i.Username,
		&i.PasswordSealed,
		&i.NeedsReauth,
		&i.SyncErrorCount,
		&i.LastError,
		&i.LastErrorAt,
		&i.LastAuthAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertCredentials = `-- name: UpsertCredentials :exec
insert into portal_accounts(user_id, username, password_sealed, created_at, updated_at)
values (?1, ?2, ?3, ?4, ?4)
on conflict (user_id) do update set
    username = excluded.username,
    password_sealed = excluded.password_sealed,
    updated_at = excluded.updated_at
`

type UpsertCredentialsParams struct {
	UserID         string
	Username       string
	PasswordSealed string
	Now            int64
}

func (q *Queries) UpsertCredentials(ctx context.Context, arg UpsertCredentialsParams) error {
	_, err := q.db.ExecContext(ctx, upsertCredentials,
		arg.UserID,
		arg.Username,
		arg.PasswordSealed,
		arg.Now,
	)
	return err
}

const recordAuthSuccess = `-- name: RecordAuthSuccess :execrows
update portal_accounts set
    needs_reauth = 0,
    sync_error_count = 0,
    last_error = '',
    last_auth_at = ?2,
    updated_at = ?2
where user_id = ?1
`

type RecordAuthSuccessParams struct {
	UserID string
	Now    int64
}

func (q *Queries) RecordAuthSuccess(ctx context.Context, arg RecordAuthSuccessParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, recordAuthSuccess, arg.UserID, arg.Now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const recordAuthFailure = `-- name: RecordAuthFailure :execrows
update portal_accounts set
    needs_reauth = 1,
    sync_error_count = sync_error_count + 1,
    last_error = ?2,
    last_error_at = ?3,
    updated_at = ?3
where user_id = ?1
`

type RecordAuthFailureParams struct {
	UserID    string
	LastError string
	Now       int64
}

func (q *Queries) RecordAuthFailure(ctx context.Context, arg RecordAuthFailureParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, recordAuthFailure, arg.UserID, arg.LastError, arg.Now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listNeedingReauth = `-- name: ListNeedingReauth :many
select user_id from portal_accounts where needs_reauth = 1 order by user_id
`

func (q *Queries) ListNeedingReauth(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listNeedingReauth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		items = append(items, userID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteAccount = `-- name: DeleteAccount :exec
delete from portal_accounts where user_id = ?
`

func (q *Queries) DeleteAccount(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteAccount, userID)
	return err
}
