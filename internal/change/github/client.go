// Package github implements change.ReviewSystem against the GitHub pull
// request API. Every transport, HTTP or breaker failure surfaces as
// change.ErrExternalUnavailable so callers upstream fail closed.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/forgeerp/forgeerp/internal/change"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 10 * time.Second
)

// Client talks to one repository's pull requests.
type Client struct {
	baseURL string
	owner   string
	repo    string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

var _ change.ReviewSystem = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API host, mainly for tests and GHE installs.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout bounds every request; review-system calls must never hang the
// gate.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func NewClient(owner, repo, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		owner:   owner,
		repo:    repo,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "github:" + owner + "/" + repo,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

type pullPayload struct {
	Number   int        `json:"number"`
	HTMLURL  string     `json:"html_url"`
	State    string     `json:"state"`
	Merged   bool       `json:"merged"`
	MergedAt *time.Time `json:"merged_at"`
	ClosedAt *time.Time `json:"closed_at"`
}

type reviewPayload struct {
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	State       string    `json:"state"`
	Body        string    `json:"body"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (c *Client) CreateReviewRequest(ctx context.Context, title, body, sourceRef, targetRef string) (*change.RemoteRequest, error) {
	payload := map[string]string{
		"title": title,
		"body":  body,
		"head":  sourceRef,
		"base":  targetRef,
	}
	raw, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", c.owner, c.repo), payload)
	if err != nil {
		return nil, err
	}
	return decodePull(raw)
}

func (c *Client) GetReviewRequest(ctx context.Context, number int) (*change.RemoteRequest, error) {
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d", c.owner, c.repo, number), nil)
	if err != nil {
		return nil, err
	}
	return decodePull(raw)
}

func (c *Client) ListReviews(ctx context.Context, number int) ([]change.Review, error) {
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", c.owner, c.repo, number), nil)
	if err != nil {
		return nil, err
	}
	var payload []reviewPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, unavailable("decode reviews: %v", err)
	}
	out := make([]change.Review, 0, len(payload))
	for _, r := range payload {
		out = append(out, change.Review{
			Reviewer:    r.User.Login,
			State:       r.State,
			Body:        r.Body,
			SubmittedAt: r.SubmittedAt,
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, unavailable("encode request: %v", err)
			}
			body = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, unavailable("build request: %v", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, unavailable("%v", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, unavailable("read response: %v", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, unavailable("%s %s: status %d", method, path, resp.StatusCode)
		}
		return raw, nil
	})
	if err != nil && !errors.Is(err, change.ErrExternalUnavailable) {
		// Breaker-open and other wrapper-level failures.
		return nil, unavailable("%v", err)
	}
	return raw, err
}

func decodePull(raw []byte) (*change.RemoteRequest, error) {
	var p pullPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, unavailable("decode pull: %v", err)
	}
	return &change.RemoteRequest{
		Number:   p.Number,
		URL:      p.HTMLURL,
		State:    p.State,
		Merged:   p.Merged,
		MergedAt: p.MergedAt,
		ClosedAt: p.ClosedAt,
	}, nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", change.ErrExternalUnavailable, fmt.Sprintf(format, args...))
}
