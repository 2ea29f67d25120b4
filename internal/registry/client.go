// Package registry is the client of the conference backend's live-session
// registry. The backend owns every session record and its status; this
// package only issues requests and decodes answers.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
)

// SessionTimeLayout is how session_time is sent to the backend
const SessionTimeLayout = "2006-01-02T15:04:05"

// TokenSource supplies the bearer token and is told when the backend
// rejected it
type TokenSource interface {
	Token() string
	Invalidate(ctx context.Context, reason string)
}

// Client handles interactions with the conference backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	metrics    *metrics.Metrics
}

// NewClient creates an anonymous backend client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetMetrics enables request latency recording
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// As returns a client sharing c's transport that authenticates with tokens
func (c *Client) As(tokens TokenSource) *Client {
	clone := *c
	clone.tokens = tokens
	return &clone
}

func conferencePath(conferenceID int, rest string) string {
	return fmt.Sprintf("/conferences/%d/live-sessions%s", conferenceID, rest)
}

// do sends a request and decodes a JSON answer into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(token, "Bearer "))
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveBackendRequest(method, 0, time.Since(start))
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveBackendRequest(method, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
			c.tokens.Invalidate(ctx, fmt.Sprintf("%s %s answered 401", method, path))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// CanJoin asks whether a joinable session exists for the conference
func (c *Client) CanJoin(ctx context.Context, conferenceID int) (*models.CanJoinResponse, error) {
	var resp models.CanJoinResponse
	if err := c.do(ctx, http.MethodGet, conferencePath(conferenceID, "/can-join"), nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Session != nil {
		resp.Session.ConferenceID = conferenceID
	}
	return &resp, nil
}

// ActiveSession returns the conference's active session, or nil when none
func (c *Client) ActiveSession(ctx context.Context, conferenceID int) (*models.LiveSession, error) {
	var resp models.ActiveSessionResponse
	if err := c.do(ctx, http.MethodGet, conferencePath(conferenceID, "/active"), nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.ActiveSession != nil {
		resp.ActiveSession.ConferenceID = conferenceID
	}
	return resp.ActiveSession, nil
}

func (c *Client) listSessions(ctx context.Context, path string, conferenceID int) ([]models.LiveSession, error) {
	var resp models.SessionList
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	for i := range resp.Sessions {
		resp.Sessions[i].ConferenceID = conferenceID
	}
	if resp.Sessions == nil {
		resp.Sessions = []models.LiveSession{}
	}
	return resp.Sessions, nil
}

// ListSessions returns every session of a conference (organizer only)
func (c *Client) ListSessions(ctx context.Context, conferenceID int) ([]models.LiveSession, error) {
	return c.listSessions(ctx, conferencePath(conferenceID, ""), conferenceID)
}

// ListPublicSessions returns the public schedule of a conference
func (c *Client) ListPublicSessions(ctx context.Context, conferenceID int) ([]models.LiveSession, error) {
	return c.listSessions(ctx, conferencePath(conferenceID, "/public"), conferenceID)
}

// CreateSession schedules a new PENDING session
func (c *Client) CreateSession(ctx context.Context, conferenceID int, title string, sessionTime time.Time) (*models.LiveSession, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("session_title", title); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}
	if err := form.WriteField("session_time", sessionTime.Format(SessionTimeLayout)); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	var session models.LiveSession
	if err := c.do(ctx, http.MethodPost, conferencePath(conferenceID, ""), &buf, form.FormDataContentType(), &session); err != nil {
		return nil, err
	}
	session.ConferenceID = conferenceID
	return &session, nil
}

func (c *Client) transition(ctx context.Context, conferenceID, sessionID int, action string) (*models.LiveSession, error) {
	var session models.LiveSession
	path := conferencePath(conferenceID, fmt.Sprintf("/%d/%s", sessionID, action))
	if err := c.do(ctx, http.MethodPost, path, nil, "", &session); err != nil {
		return nil, err
	}
	session.ConferenceID = conferenceID
	return &session, nil
}

// StartSession moves a PENDING session to ACTIVE
func (c *Client) StartSession(ctx context.Context, conferenceID, sessionID int) (*models.LiveSession, error) {
	return c.transition(ctx, conferenceID, sessionID, "start")
}

// StopSession moves an ACTIVE session to ENDED
func (c *Client) StopSession(ctx context.Context, conferenceID, sessionID int) (*models.LiveSession, error) {
	return c.transition(ctx, conferenceID, sessionID, "stop")
}

// DeleteSession removes a session
func (c *Client) DeleteSession(ctx context.Context, conferenceID, sessionID int) error {
	return c.do(ctx, http.MethodDelete, conferencePath(conferenceID, fmt.Sprintf("/%d", sessionID)), nil, "", nil)
}

// Login exchanges email and password for an access token
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveSubscription forwards a web push subscription to the backend
func (c *Client) SaveSubscription(ctx context.Context, subscription any) error {
	data, err := json.Marshal(subscription)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/save-subscription", bytes.NewReader(data), "application/json", nil)
}
