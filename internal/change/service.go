package change

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/forgeerp/forgeerp/internal/obs"
)

const (
	defaultMinApprovals = 1
	reconcileFanOut     = 4
)

// Service mirrors external review requests into the local store and derives
// the authorization-relevant state from them.
type Service struct {
	store        Store
	reviews      ReviewSystem
	minApprovals int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithMinApprovals sets how many distinct approving reviewers a request
// needs before it counts as approved.
func WithMinApprovals(n int) ServiceOption {
	return func(s *Service) error {
		if n < 1 {
			return errors.New("change: min approvals must be at least 1")
		}
		s.minApprovals = n
		return nil
	}
}

func NewService(store Store, reviews ReviewSystem, opts ...ServiceOption) (*Service, error) {
	if store == nil || reviews == nil {
		return nil, errors.New("change: store and review system are required")
	}
	svc := &Service{
		store:        store,
		reviews:      reviews,
		minApprovals: defaultMinApprovals,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// FileParams describes a new grave-change request.
type FileParams struct {
	Title     string
	Body      string
	SourceRef string
	TargetRef string
	Kind      Kind
	Target    string
	Payload   string
}

// File creates the external review artifact and then the local mirror row.
// The external call goes first: if it fails there is no orphan cache entry,
// and a local insert failure leaves an external artifact that the next
// reconcile of that number will mirror.
func (s *Service) File(ctx context.Context, p FileParams) (*Request, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" || p.Kind == "" {
		return nil, fmt.Errorf("%w: title and kind are required", ErrInvalidInput)
	}
	remote, err := s.reviews.CreateReviewRequest(ctx, p.Title, p.Body, p.SourceRef, p.TargetRef)
	if err != nil {
		return nil, err
	}
	req := &Request{
		Number:      remote.Number,
		URL:         remote.URL,
		Title:       p.Title,
		Description: p.Body,
		Status:      StatusOpen,
		Kind:        p.Kind,
		Target:      p.Target,
		Payload:     p.Payload,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Reconcile fetches the external state of one request and overwrites the
// local mirror from it. The write happens only after both external fetches
// complete, so a failed fetch never leaves a partial overwrite. Repeated and
// concurrent calls for the same number converge: each derives the same row
// from the same external truth and each write is atomic.
func (s *Service) Reconcile(ctx context.Context, number int) (*Request, error) {
	remote, err := s.reviews.GetReviewRequest(ctx, number)
	if err != nil {
		obs.ChangeReconciles.WithLabelValues("error").Inc()
		return nil, err
	}
	reviews, err := s.reviews.ListReviews(ctx, number)
	if err != nil {
		obs.ChangeReconciles.WithLabelValues("error").Inc()
		return nil, err
	}

	verdicts := latestVerdicts(reviews)
	count := 0
	for _, approved := range verdicts {
		if approved {
			count++
		}
	}
	approved := count >= s.minApprovals

	req := &Request{
		Number:        number,
		URL:           remote.URL,
		Status:        deriveStatus(remote, approved),
		IsApproved:    approved,
		IsMerged:      remote.Merged,
		ApprovalCount: count,
		MergedAt:      remote.MergedAt,
		ClosedAt:      remote.ClosedAt,
	}
	stored, err := s.store.Upsert(ctx, req)
	if err != nil {
		obs.ChangeReconciles.WithLabelValues("error").Inc()
		return nil, err
	}

	rows := make([]Approval, 0, len(verdicts))
	for reviewer, ok := range verdicts {
		rows = append(rows, Approval{Reviewer: reviewer, Approved: ok})
	}
	if err := s.store.ReplaceApprovals(ctx, stored.ID, rows); err != nil {
		return nil, err
	}
	obs.ChangeReconciles.WithLabelValues("ok").Inc()
	return stored, nil
}

// ReconcileOpen refreshes every non-terminal mirror row. Intended for a
// periodic caller; failures on individual rows abort the batch and surface.
func (s *Service) ReconcileOpen(ctx context.Context) error {
	open, err := s.store.ListNonTerminal(ctx)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileFanOut)
	for _, r := range open {
		g.Go(func() error {
			_, err := s.Reconcile(ctx, r.Number)
			return err
		})
	}
	return g.Wait()
}

// Status returns the freshly reconciled state of one request.
func (s *Service) Status(ctx context.Context, number int) (*Request, error) {
	if _, err := s.store.GetByNumber(ctx, number); err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, number)
}

func (s *Service) List(ctx context.Context) ([]Request, error) {
	return s.store.List(ctx)
}

func (s *Service) Approvals(ctx context.Context, number int) ([]Approval, error) {
	req, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.store.ListApprovals(ctx, req.ID)
}

// latestVerdicts reduces the review list to each reviewer's most recent
// approve/reject verdict. A later rejection supersedes an earlier approval;
// comment-only reviews carry no verdict and are ignored.
func latestVerdicts(reviews []Review) map[string]bool {
	latest := make(map[string]Review)
	verdicts := make(map[string]bool)
	for _, r := range reviews {
		approved, ok := verdict(r.State)
		if !ok || r.Reviewer == "" {
			continue
		}
		prev, seen := latest[r.Reviewer]
		if seen && !r.SubmittedAt.After(prev.SubmittedAt) {
			continue
		}
		latest[r.Reviewer] = r
		verdicts[r.Reviewer] = approved
	}
	return verdicts
}

func verdict(state string) (approved, ok bool) {
	switch strings.ToLower(state) {
	case "approved", "approve":
		return true, true
	case "changes_requested", "request_changes", "rejected":
		return false, true
	default:
		return false, false
	}
}

func deriveStatus(remote *RemoteRequest, approved bool) Status {
	switch {
	case remote.Merged:
		return StatusMerged
	case strings.EqualFold(remote.State, "closed"):
		return StatusClosed
	case approved:
		return StatusApproved
	default:
		return StatusOpen
	}
}
