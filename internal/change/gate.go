package change

import (
	"context"
	"errors"

	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/obs"
)

// Evaluator is the permission check the gate runs first; satisfied by
// auth.Service.
type Evaluator interface {
	Authorize(ctx context.Context, user *auth.User, action auth.Action, scope auth.Scope) (bool, error)
}

// Decision is the gate's verdict. Reason is set only on denial.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Denial reasons.
const (
	ReasonInsufficientRole = "insufficient role"
	ReasonNoRequest        = "no change request on file"
	ReasonUnverifiable     = "could not verify approval status"
	ReasonPending          = "pending approval"
)

var kindActions = map[Kind]auth.Action{
	KindDeploy:           auth.ActionDeploy,
	KindDisasterRecovery: auth.ActionDisasterRecovery,
	KindConfigChange:     auth.ActionConfigChange,
	KindModuleChange:     auth.ActionModuleInstall,
}

// Gate authorizes grave actions: the permission evaluator must allow the
// action AND an externally reviewed change request must be approved or
// merged. It is consulted before an action's side effects, never after, and
// every ambiguous or partial failure denies. There is no fail-open path.
type Gate struct {
	changes   *Service
	evaluator Evaluator
}

func NewGate(changes *Service, evaluator Evaluator) (*Gate, error) {
	if changes == nil || evaluator == nil {
		return nil, errors.New("change: service and evaluator are required")
	}
	return &Gate{changes: changes, evaluator: evaluator}, nil
}

// AuthorizeGraveAction decides whether the user may perform the grave action
// right now. The candidate request is always reconciled before deciding; a
// cached is_approved older than this call is never trusted.
func (g *Gate) AuthorizeGraveAction(ctx context.Context, user *auth.User, kind Kind, target string) Decision {
	return g.observe(kind, g.decide(ctx, user, kind, target))
}

func (g *Gate) decide(ctx context.Context, user *auth.User, kind Kind, target string) Decision {
	action, ok := kindActions[kind]
	if !ok {
		return Decision{Reason: ReasonInsufficientRole}
	}
	allowed, err := g.evaluator.Authorize(ctx, user, action, auth.Scope{ClientID: target})
	if err != nil || !allowed {
		return Decision{Reason: ReasonInsufficientRole}
	}

	candidate, err := g.changes.store.LatestCandidate(ctx, kind, target)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Decision{Reason: ReasonNoRequest}
		}
		return Decision{Reason: ReasonUnverifiable}
	}

	req, err := g.changes.Reconcile(ctx, candidate.Number)
	if err != nil {
		return Decision{Reason: ReasonUnverifiable}
	}

	if req.IsMerged || req.Status == StatusMerged {
		return Decision{Allowed: true}
	}
	if req.IsApproved && (req.Status == StatusOpen || req.Status == StatusApproved) {
		return Decision{Allowed: true}
	}
	return Decision{Reason: ReasonPending}
}

func (g *Gate) observe(kind Kind, d Decision) Decision {
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	obs.GateDecisions.WithLabelValues(string(kind), outcome).Inc()
	return d
}
