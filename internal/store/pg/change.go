package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/forgeerp/forgeerp/internal/change"
	"github.com/forgeerp/forgeerp/internal/ids"
)

// ChangeStore implements change.Store.
type ChangeStore struct {
	db *sql.DB
}

var _ change.Store = (*ChangeStore)(nil)

const requestColumns = `id, number, url, title, description, status, is_approved, is_merged,
	approval_count, kind, target, payload, merged_at, closed_at, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*change.Request, error) {
	var r change.Request
	err := row.Scan(&r.ID, &r.Number, &r.URL, &r.Title, &r.Description, &r.Status,
		&r.IsApproved, &r.IsMerged, &r.ApprovalCount, &r.Kind, &r.Target, &r.Payload,
		&r.MergedAt, &r.ClosedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, change.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ChangeStore) Create(ctx context.Context, r *change.Request) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into change_requests(id, number, url, title, description, status, is_approved, is_merged,
			approval_count, kind, target, payload, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, r.ID, r.Number, r.URL, r.Title, r.Description, r.Status, r.IsApproved, r.IsMerged,
		r.ApprovalCount, r.Kind, r.Target, r.Payload, r.CreatedAt, r.UpdatedAt)
	return mapError(err, change.ErrConflict, change.ErrNotFound)
}

// Upsert writes reconciled state keyed by external number in one atomic
// statement. The synchronizer-owned columns are overwritten; locally filed
// columns keep their stored values on conflict.
func (s *ChangeStore) Upsert(ctx context.Context, r *change.Request) (*change.Request, error) {
	if r.ID == "" {
		r.ID = ids.New()
	}
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		insert into change_requests(id, number, url, title, description, status, is_approved, is_merged,
			approval_count, kind, target, payload, merged_at, closed_at, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
		on conflict (number) do update set
			url = excluded.url,
			status = excluded.status,
			is_approved = excluded.is_approved,
			is_merged = excluded.is_merged,
			approval_count = excluded.approval_count,
			merged_at = excluded.merged_at,
			closed_at = excluded.closed_at,
			updated_at = case
				when (change_requests.status, change_requests.is_approved, change_requests.is_merged,
					change_requests.approval_count, change_requests.merged_at, change_requests.closed_at)
					is distinct from
					(excluded.status, excluded.is_approved, excluded.is_merged,
					excluded.approval_count, excluded.merged_at, excluded.closed_at)
				then excluded.updated_at
				else change_requests.updated_at
			end
		returning `+requestColumns+`
	`, r.ID, r.Number, r.URL, r.Title, r.Description, r.Status, r.IsApproved, r.IsMerged,
		r.ApprovalCount, r.Kind, r.Target, r.Payload, r.MergedAt, r.ClosedAt, now)
	return scanRequest(row)
}

func (s *ChangeStore) GetByNumber(ctx context.Context, number int) (*change.Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx,
		`select `+requestColumns+` from change_requests where number=$1`, number))
}

func (s *ChangeStore) List(ctx context.Context) ([]change.Request, error) {
	return s.list(ctx, `select `+requestColumns+` from change_requests order by number`)
}

func (s *ChangeStore) ListNonTerminal(ctx context.Context) ([]change.Request, error) {
	return s.list(ctx, `
		select `+requestColumns+` from change_requests
		where status not in ('closed','rejected') order by number
	`)
}

func (s *ChangeStore) list(ctx context.Context, query string, args ...any) ([]change.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []change.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *ChangeStore) LatestCandidate(ctx context.Context, kind change.Kind, target string) (*change.Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `
		select `+requestColumns+` from change_requests
		where kind=$1 and target=$2 and status not in ('closed','rejected')
		order by created_at desc
		limit 1
	`, kind, target))
}

func (s *ChangeStore) ReplaceApprovals(ctx context.Context, requestID string, approvals []change.Approval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from change_approvals where request_id=$1`, requestID); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, a := range approvals {
		if _, err := tx.ExecContext(ctx, `
			insert into change_approvals(id, request_id, reviewer, approved, comment, created_at)
			values ($1,$2,$3,$4,$5,$6)
		`, ids.New(), requestID, a.Reviewer, a.Approved, a.Comment, now); err != nil {
			return mapError(err, change.ErrConflict, change.ErrNotFound)
		}
	}
	return tx.Commit()
}

func (s *ChangeStore) ListApprovals(ctx context.Context, requestID string) ([]change.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, request_id, reviewer, approved, comment, created_at
		from change_approvals where request_id=$1 order by reviewer
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []change.Approval
	for rows.Next() {
		var a change.Approval
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Reviewer, &a.Approved, &a.Comment, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
