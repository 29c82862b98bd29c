// Package profile talks to the external user profile service: it records
// last-seen timestamps and lists a caller's friends.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Tyrowin/gopresence/internal/events"
)

var (
	// ErrUnauthorized means the service rejected the caller's token.
	ErrUnauthorized = errors.New("profile: unauthorized")
	// ErrNotConfigured is returned when no base URL is set.
	ErrNotConfigured = errors.New("profile: base url not configured")
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64
}

// Client is an HTTP client of the profile service.
type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
	log        *slog.Logger
}

// NewClient creates a Client. A zero timeout defaults to five seconds.
func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:        log,
	}
}

type lastSeenBody struct {
	LastActive time.Time `json:"last_active"`
}

// NotifyLastSeen records when userID went offline. Network errors and 5xx
// responses are retried with exponential backoff; 4xx responses are not.
func (c *Client) NotifyLastSeen(ctx context.Context, userID string, at time.Time) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(lastSeenBody{LastActive: at.UTC()})
	if err != nil {
		return fmt.Errorf("profile: encode last seen: %w", err)
	}
	endpoint := c.baseURL + "/api/users/" + url.PathEscape(userID) + "/last-seen"

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug("Last seen update failed", "user", userID, "attempt", attempt, "error", err)
			return err
		}
		defer drain(resp)

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("profile: last seen for %s: status %d", userID, resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("profile: last seen for %s: status %d", userID, resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}

// Friend is one entry of a friends listing.
type Friend struct {
	ID         string
	LastActive *time.Time
}

type friendsResponse struct {
	Data []struct {
		ID         events.ID  `json:"id"`
		LastActive *time.Time `json:"last_active"`
	} `json:"data"`
}

// Friends lists the friends of the user identified by token.
func (c *Client) Friends(ctx context.Context, token string) ([]Friend, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/friends", nil)
	if err != nil {
		return nil, fmt.Errorf("profile: build friends request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile: friends: %w", err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("profile: friends: status %d", resp.StatusCode)
	}

	var payload friendsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("profile: decode friends: %w", err)
	}

	friends := make([]Friend, 0, len(payload.Data))
	for _, f := range payload.Data {
		if f.ID == "" {
			continue
		}
		friends = append(friends, Friend{ID: f.ID.String(), LastActive: f.LastActive})
	}
	return friends, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
