package change

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("change: not found")
	ErrConflict            = errors.New("change: already exists")
	ErrInvalidInput        = errors.New("change: invalid input")
	ErrExternalUnavailable = errors.New("change: review system unavailable")
)

// Status is the local mirror of a review request's lifecycle.
type Status string

const (
	StatusOpen     Status = "open"
	StatusApproved Status = "approved"
	StatusMerged   Status = "merged"
	StatusClosed   Status = "closed"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status can no longer authorize anything and
// will never change on reconcile.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusRejected
}

// Kind classifies what a change request authorizes.
type Kind string

const (
	KindDeploy           Kind = "deploy"
	KindDisasterRecovery Kind = "disaster_recovery"
	KindConfigChange     Kind = "config_change"
	KindModuleChange     Kind = "module_change"
)

// Request mirrors one externally hosted review artifact. Rows are created
// when a grave change is filed, mutated only by Reconcile, and never
// deleted: closed and rejected are terminal states, not erasure. This table
// is the audit trail for irreversible operations.
type Request struct {
	ID          string `json:"id"`
	Number      int    `json:"number"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Status        Status `json:"status"`
	IsApproved    bool   `json:"is_approved"`
	IsMerged      bool   `json:"is_merged"`
	ApprovalCount int    `json:"approval_count"`

	Kind    Kind   `json:"kind,omitempty"`
	Target  string `json:"target,omitempty"`
	Payload string `json:"payload,omitempty"`

	MergedAt  *time.Time `json:"merged_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Approval is an audit cache row for one reviewer's latest verdict. The rows
// are replaced wholesale on every reconcile; authorization always recounts
// from the external system, never from these rows.
type Approval struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Reviewer  string    `json:"reviewer"`
	Approved  bool      `json:"approved"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
