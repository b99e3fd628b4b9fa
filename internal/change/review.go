package change

import (
	"context"
	"time"
)

// RemoteRequest is the external review system's view of one request.
type RemoteRequest struct {
	Number   int
	URL      string
	State    string // "open" or "closed"
	Merged   bool
	MergedAt *time.Time
	ClosedAt *time.Time
}

// Review is one reviewer verdict as reported by the external system.
type Review struct {
	Reviewer    string
	State       string // "approved", "changes_requested", "commented", ...
	Body        string
	SubmittedAt time.Time
}

// ReviewSystem is the narrow surface of the external review host. Every
// implementation maps its transport failures to ErrExternalUnavailable; the
// synchronizer and the gate never see raw transport errors.
type ReviewSystem interface {
	CreateReviewRequest(ctx context.Context, title, body, sourceRef, targetRef string) (*RemoteRequest, error)
	GetReviewRequest(ctx context.Context, number int) (*RemoteRequest, error)
	ListReviews(ctx context.Context, number int) ([]Review, error)
}
