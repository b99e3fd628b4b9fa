package change

import (
	"context"
	"testing"
	"time"

	"github.com/forgeerp/forgeerp/internal/auth"
)

func newTestGate(t *testing.T, reviews ReviewSystem) (*Gate, *Service, *auth.Service) {
	t.Helper()
	users := auth.NewMemoryStore()
	authSvc, err := auth.NewService(users, users, []byte("test-secret"))
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	changeSvc := newTestService(t, reviews)
	gate, err := NewGate(changeSvc, authSvc)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate, changeSvc, authSvc
}

func grantedUser(t *testing.T, authSvc *auth.Service, role auth.Role, action auth.Action, clientID string) *auth.User {
	t.Helper()
	u, err := authSvc.CreateUser(context.Background(), "op-"+string(role), string(role)+"@forgeerp.example", "s3cret-pass", "", role)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if action != "" {
		if err := authSvc.AddGrant(context.Background(), &auth.Grant{UserID: u.ID, Action: action, ClientID: clientID}); err != nil {
			t.Fatalf("AddGrant: %v", err)
		}
	}
	return u
}

func TestGateEndToEnd(t *testing.T) {
	reviews := newFakeReviews()
	gate, changeSvc, authSvc := newTestGate(t, reviews)
	ctx := context.Background()

	user := grantedUser(t, authSvc, auth.RoleUser, auth.ActionDeploy, "t1")

	// Nothing filed yet.
	d := gate.AuthorizeGraveAction(ctx, user, KindDeploy, "t1")
	if d.Allowed || d.Reason != ReasonNoRequest {
		t.Fatalf("expected %q, got %+v", ReasonNoRequest, d)
	}

	req, err := changeSvc.File(ctx, FileParams{Title: "deploy t1", Kind: KindDeploy, Target: "t1"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	// Filed but not yet approved.
	d = gate.AuthorizeGraveAction(ctx, user, KindDeploy, "t1")
	if d.Allowed || d.Reason != ReasonPending {
		t.Fatalf("expected %q, got %+v", ReasonPending, d)
	}

	reviews.setReviews(req.Number, []Review{
		{Reviewer: "alice", State: "approved", SubmittedAt: time.Now().UTC()},
	})
	d = gate.AuthorizeGraveAction(ctx, user, KindDeploy, "t1")
	if !d.Allowed {
		t.Fatalf("expected allow after approval, got %+v", d)
	}
}

func TestGateInsufficientRole(t *testing.T) {
	reviews := newFakeReviews()
	gate, _, authSvc := newTestGate(t, reviews)
	ctx := context.Background()

	viewer := grantedUser(t, authSvc, auth.RoleViewer, auth.ActionDeploy, "t1")
	d := gate.AuthorizeGraveAction(ctx, viewer, KindDeploy, "t1")
	if d.Allowed || d.Reason != ReasonInsufficientRole {
		t.Fatalf("viewer must be denied regardless of grants, got %+v", d)
	}

	d = gate.AuthorizeGraveAction(ctx, nil, KindDeploy, "t1")
	if d.Allowed || d.Reason != ReasonInsufficientRole {
		t.Fatalf("nil user must be denied, got %+v", d)
	}
}

func TestGateFailsClosedWhenExternalDown(t *testing.T) {
	reviews := newFakeReviews()
	gate, changeSvc, authSvc := newTestGate(t, reviews)
	ctx := context.Background()

	user := grantedUser(t, authSvc, auth.RoleUser, auth.ActionDeploy, "t1")
	req, err := changeSvc.File(ctx, FileParams{Title: "deploy t1", Kind: KindDeploy, Target: "t1"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	reviews.setReviews(req.Number, []Review{
		{Reviewer: "alice", State: "approved", SubmittedAt: time.Now().UTC()},
	})

	// A stale local approval must never outweigh an unreachable external
	// system.
	if _, err := changeSvc.Reconcile(ctx, req.Number); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	reviews.setDown(true)
	d := gate.AuthorizeGraveAction(ctx, user, KindDeploy, "t1")
	if d.Allowed || d.Reason != ReasonUnverifiable {
		t.Fatalf("expected %q, got %+v", ReasonUnverifiable, d)
	}
}

func TestGateCancellationDenies(t *testing.T) {
	reviews := newFakeReviews()
	gate, changeSvc, authSvc := newTestGate(t, reviews)

	user := grantedUser(t, authSvc, auth.RoleUser, auth.ActionDeploy, "t1")
	req, err := changeSvc.File(context.Background(), FileParams{Title: "deploy t1", Kind: KindDeploy, Target: "t1"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	reviews.setReviews(req.Number, []Review{
		{Reviewer: "alice", State: "approved", SubmittedAt: time.Now().UTC()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := gate.AuthorizeGraveAction(ctx, user, KindDeploy, "t1")
	if d.Allowed || d.Reason != ReasonUnverifiable {
		t.Fatalf("cancelled gate call must deny with %q, got %+v", ReasonUnverifiable, d)
	}
}

func TestGateMergedAllows(t *testing.T) {
	reviews := newFakeReviews()
	gate, changeSvc, authSvc := newTestGate(t, reviews)
	ctx := context.Background()

	admin := grantedUser(t, authSvc, auth.RoleAdmin, "", "")
	req, err := changeSvc.File(ctx, FileParams{Title: "dr racco", Kind: KindDisasterRecovery, Target: "racco"})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	now := time.Now().UTC()
	reviews.remote[req.Number].State = "closed"
	reviews.remote[req.Number].Merged = true
	reviews.remote[req.Number].MergedAt = &now

	d := gate.AuthorizeGraveAction(ctx, admin, KindDisasterRecovery, "racco")
	if !d.Allowed {
		t.Fatalf("merged request must allow, got %+v", d)
	}
}
