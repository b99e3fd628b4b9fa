package change

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/forgeerp/forgeerp/internal/ids"
)

// MemoryStore is the in-memory Store used by tests and DSN-less runs.
type MemoryStore struct {
	mu        sync.Mutex
	requests  map[string]*Request
	approvals map[string][]Approval
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[string]*Request),
		approvals: make(map[string][]Approval),
	}
}

func (m *MemoryStore) byNumber(number int) *Request {
	for _, r := range m.requests {
		if r.Number == number {
			return r
		}
	}
	return nil
}

func (m *MemoryStore) Create(_ context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byNumber(r.Number) != nil {
		return ErrConflict
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, r *Request) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	existing := m.byNumber(r.Number)
	if existing == nil {
		if r.ID == "" {
			r.ID = ids.New()
		}
		r.CreatedAt = now
		r.UpdatedAt = now
		cp := *r
		m.requests[r.ID] = &cp
		out := cp
		return &out, nil
	}
	if unchanged(existing, r) {
		cp := *existing
		return &cp, nil
	}
	existing.URL = r.URL
	existing.Status = r.Status
	existing.IsApproved = r.IsApproved
	existing.IsMerged = r.IsMerged
	existing.ApprovalCount = r.ApprovalCount
	existing.MergedAt = r.MergedAt
	existing.ClosedAt = r.ClosedAt
	existing.UpdatedAt = now
	cp := *existing
	return &cp, nil
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// unchanged reports whether the reconciled state matches the stored row, so
// a no-change reconcile leaves the row untouched.
func unchanged(existing, r *Request) bool {
	return existing.URL == r.URL &&
		existing.Status == r.Status &&
		existing.IsApproved == r.IsApproved &&
		existing.IsMerged == r.IsMerged &&
		existing.ApprovalCount == r.ApprovalCount &&
		timeEqual(existing.MergedAt, r.MergedAt) &&
		timeEqual(existing.ClosedAt, r.ClosedAt)
}

func (m *MemoryStore) GetByNumber(_ context.Context, number int) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.byNumber(number)
	if r == nil {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.requests {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStore) ListNonTerminal(_ context.Context) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.requests {
		if !r.Status.Terminal() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStore) LatestCandidate(_ context.Context, kind Kind, target string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Request
	for _, r := range m.requests {
		if r.Kind != kind || r.Target != target || r.Status.Terminal() {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) ReplaceApprovals(_ context.Context, requestID string, approvals []Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rows := make([]Approval, 0, len(approvals))
	for _, a := range approvals {
		a.ID = ids.New()
		a.RequestID = requestID
		a.CreatedAt = now
		rows = append(rows, a)
	}
	m.approvals[requestID] = rows
	return nil
}

func (m *MemoryStore) ListApprovals(_ context.Context, requestID string) ([]Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Approval, len(m.approvals[requestID]))
	copy(out, m.approvals[requestID])
	return out, nil
}
