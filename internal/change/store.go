package change

import "context"

// Store persists the local change-request mirror and its approval cache.
type Store interface {
	// Create inserts the row filed for a new external request. ErrConflict
	// when the external number is already mirrored.
	Create(ctx context.Context, r *Request) error

	// Upsert writes reconciled state keyed by external number. When the row
	// exists its synchronizer-owned fields (status, flags, approval count,
	// terminal timestamps) are fully overwritten; locally filed fields (kind,
	// target, payload, title) are preserved. When it does not exist the row
	// is created from the reconciled state. The write is atomic per row.
	Upsert(ctx context.Context, r *Request) (*Request, error)

	GetByNumber(ctx context.Context, number int) (*Request, error)
	List(ctx context.Context) ([]Request, error)

	// ListNonTerminal returns rows whose status can still change.
	ListNonTerminal(ctx context.Context) ([]Request, error)

	// LatestCandidate returns the most recently created request for
	// (kind, target) whose status is not terminal. ErrNotFound when none.
	LatestCandidate(ctx context.Context, kind Kind, target string) (*Request, error)

	// ReplaceApprovals swaps the audit cache rows for a request wholesale.
	ReplaceApprovals(ctx context.Context, requestID string, approvals []Approval) error
	ListApprovals(ctx context.Context, requestID string) ([]Approval, error)
}
