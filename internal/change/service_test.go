package change

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeReviews is a deterministic in-process ReviewSystem.
type fakeReviews struct {
	mu      sync.Mutex
	next    int
	remote  map[int]*RemoteRequest
	reviews map[int][]Review
	down    bool
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{
		next:    100,
		remote:  make(map[int]*RemoteRequest),
		reviews: make(map[int][]Review),
	}
}

func (f *fakeReviews) CreateReviewRequest(ctx context.Context, title, body, sourceRef, targetRef string) (*RemoteRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}
	if f.down {
		return nil, fmt.Errorf("%w: connection refused", ErrExternalUnavailable)
	}
	f.next++
	r := &RemoteRequest{
		Number: f.next,
		URL:    fmt.Sprintf("https://example.test/pulls/%d", f.next),
		State:  "open",
	}
	f.remote[r.Number] = r
	cp := *r
	return &cp, nil
}

func (f *fakeReviews) GetReviewRequest(ctx context.Context, number int) (*RemoteRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}
	if f.down {
		return nil, fmt.Errorf("%w: connection refused", ErrExternalUnavailable)
	}
	r, ok := f.remote[number]
	if !ok {
		return nil, fmt.Errorf("%w: pull %d", ErrExternalUnavailable, number)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReviews) ListReviews(ctx context.Context, number int) ([]Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}
	if f.down {
		return nil, fmt.Errorf("%w: connection refused", ErrExternalUnavailable)
	}
	out := make([]Review, len(f.reviews[number]))
	copy(out, f.reviews[number])
	return out, nil
}

func (f *fakeReviews) setReviews(number int, reviews []Review) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews[number] = reviews
}

func (f *fakeReviews) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func newTestService(t *testing.T, reviews ReviewSystem, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(NewMemoryStore(), reviews, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestFileCreatesNoRowOnExternalFailure(t *testing.T) {
	reviews := newFakeReviews()
	reviews.setDown(true)
	svc := newTestService(t, reviews)

	_, err := svc.File(context.Background(), FileParams{Title: "deploy racco", Kind: KindDeploy, Target: "racco"})
	if !errors.Is(err, ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}
	all, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("orphan row created on external failure: %+v", all)
	}
}

func TestApprovalCountingLatestReviewWins(t *testing.T) {
	reviews := newFakeReviews()
	svc := newTestService(t, reviews)
	ctx := context.Background()

	req, err := svc.File(ctx, FileParams{Title: "deploy racco", Kind: KindDeploy, Target: "racco"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	reviews.setReviews(req.Number, []Review{
		{Reviewer: "alice", State: "APPROVED", SubmittedAt: base},
		{Reviewer: "bob", State: "CHANGES_REQUESTED", SubmittedAt: base.Add(time.Minute)},
		{Reviewer: "alice", State: "CHANGES_REQUESTED", SubmittedAt: base.Add(2 * time.Minute)},
	})

	got, err := svc.Reconcile(ctx, req.Number)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.ApprovalCount != 0 || got.IsApproved {
		t.Fatalf("alice's later rejection must supersede her approval: %+v", got)
	}

	// Two distinct approvers, one comment-only review.
	reviews.setReviews(req.Number, []Review{
		{Reviewer: "alice", State: "approved", SubmittedAt: base},
		{Reviewer: "bob", State: "approved", SubmittedAt: base.Add(time.Minute)},
		{Reviewer: "carol", State: "commented", SubmittedAt: base.Add(2 * time.Minute)},
	})
	got, err = svc.Reconcile(ctx, req.Number)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.ApprovalCount != 2 || !got.IsApproved || got.Status != StatusApproved {
		t.Fatalf("expected 2 approvals and approved status: %+v", got)
	}

	cached, err := svc.Approvals(ctx, req.Number)
	if err != nil {
		t.Fatalf("Approvals: %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("approval cache should hold one row per verdict-bearing reviewer, got %d", len(cached))
	}
}

func TestReconcileIdempotent(t *testing.T) {
	reviews := newFakeReviews()
	svc := newTestService(t, reviews)
	ctx := context.Background()

	req, err := svc.File(ctx, FileParams{Title: "deploy racco", Kind: KindDeploy, Target: "racco"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	reviews.setReviews(req.Number, []Review{
		{Reviewer: "alice", State: "approved", SubmittedAt: time.Now().UTC()},
	})

	first, err := svc.Reconcile(ctx, req.Number)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := svc.Reconcile(ctx, req.Number)
		if err != nil {
			t.Fatalf("Reconcile %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("reconcile not idempotent:\nfirst  %+v\nsecond %+v", first, again)
		}
	}
}

func TestReconcileZeroReviewsRevokesApproval(t *testing.T) {
	reviews := newFakeReviews()
	svc := newTestService(t, reviews)
	ctx := context.Background()

	req, err := svc.File(ctx, FileParams{Title: "deploy racco", Kind: KindDeploy, Target: "racco"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	reviews.setReviews(req.Number, []Review{
		{Reviewer: "alice", State: "approved", SubmittedAt: time.Now().UTC()},
	})
	got, err := svc.Reconcile(ctx, req.Number)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !got.IsApproved {
		t.Fatalf("expected approved: %+v", got)
	}

	// The external system no longer reports any reviews: approval is
	// revoked, never remembered.
	reviews.setReviews(req.Number, nil)
	got, err = svc.Reconcile(ctx, req.Number)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.IsApproved || got.ApprovalCount != 0 || got.Status != StatusOpen {
		t.Fatalf("approval must be revoked when reviews vanish: %+v", got)
	}
}

func TestReconcileMergedAndClosed(t *testing.T) {
	reviews := newFakeReviews()
	svc := newTestService(t, reviews)
	ctx := context.Background()

	merged, err := svc.File(ctx, FileParams{Title: "deploy racco", Kind: KindDeploy, Target: "racco"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	closed, err := svc.File(ctx, FileParams{Title: "deploy multimodas", Kind: KindDeploy, Target: "multimodas"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	now := time.Now().UTC()
	reviews.remote[merged.Number].State = "closed"
	reviews.remote[merged.Number].Merged = true
	reviews.remote[merged.Number].MergedAt = &now
	reviews.remote[closed.Number].State = "closed"
	reviews.remote[closed.Number].ClosedAt = &now

	got, err := svc.Reconcile(ctx, merged.Number)
	if err != nil {
		t.Fatalf("Reconcile merged: %v", err)
	}
	if got.Status != StatusMerged || !got.IsMerged || got.MergedAt == nil {
		t.Fatalf("expected merged state: %+v", got)
	}

	got, err = svc.Reconcile(ctx, closed.Number)
	if err != nil {
		t.Fatalf("Reconcile closed: %v", err)
	}
	if got.Status != StatusClosed || got.IsMerged || got.ClosedAt == nil {
		t.Fatalf("expected closed state: %+v", got)
	}
}

func TestReconcileOpenSkipsTerminalRows(t *testing.T) {
	reviews := newFakeReviews()
	svc := newTestService(t, reviews)
	ctx := context.Background()

	open, err := svc.File(ctx, FileParams{Title: "deploy racco", Kind: KindDeploy, Target: "racco"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	done, err := svc.File(ctx, FileParams{Title: "deploy multimodas", Kind: KindDeploy, Target: "multimodas"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	reviews.remote[done.Number].State = "closed"
	if _, err := svc.Reconcile(ctx, done.Number); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// Remove the closed request remotely; ReconcileOpen must not touch it.
	delete(reviews.remote, done.Number)
	reviews.setReviews(open.Number, []Review{
		{Reviewer: "alice", State: "approved", SubmittedAt: time.Now().UTC()},
	})

	if err := svc.ReconcileOpen(ctx); err != nil {
		t.Fatalf("ReconcileOpen: %v", err)
	}
	got, err := svc.Status(ctx, open.Number)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !got.IsApproved {
		t.Fatalf("open row not refreshed: %+v", got)
	}
}
