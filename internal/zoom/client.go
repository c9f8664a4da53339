// Package zoom is a minimal read-only client for the Zoom REST API. It
// implements pipeline.Source.
package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appLog "zoomsync/internal/log"
	"zoomsync/internal/model"
)

const (
	DefaultBaseURL  = "https://api.zoom.us/v2"
	DefaultPageSize = 300
	DefaultTimeout  = 20 * time.Second

	// maxBodyBytes bounds decoded response bodies.
	maxBodyBytes = 8 << 20
)

// Options configures a Client. Zero values fall back to defaults; a zero
// RequestsPerSecond disables client-side limiting.
type Options struct {
	BaseURL           string
	Token             string
	PageSize          int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// APIError is a non-2xx response. Zoom error bodies carry {code, message}.
type APIError struct {
	Status  int
	Code    int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("zoom %s: http %d", e.Path, e.Status)
	}
	return fmt.Sprintf("zoom %s: http %d: code %d: %s", e.Path, e.Status, e.Code, e.Message)
}

// Client talks to the Zoom API with a bearer token.
type Client struct {
	base     *url.URL
	token    string
	pageSize int
	hc       *http.Client
	limiter  *rate.Limiter
}

func NewClient(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("zoom: base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("zoom: base url %q is not absolute", raw)
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("zoom: api token is empty")
	}

	c := &Client{
		base:     base,
		token:    opts.Token,
		pageSize: opts.PageSize,
		hc:       opts.HTTPClient,
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.hc = &http.Client{Timeout: timeout}
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// ListUsersPage fetches one page of GET /users.
func (c *Client) ListUsersPage(ctx context.Context, pageNumber int) (model.UsersPage, error) {
	q := url.Values{}
	q.Set("page_number", strconv.Itoa(pageNumber))
	q.Set("page_size", strconv.Itoa(c.pageSize))

	var page model.UsersPage
	if err := c.get(ctx, "/users", q, &page); err != nil {
		return model.UsersPage{}, err
	}
	return page, nil
}

type meetingsPage struct {
	PageSize      int                `json:"page_size"`
	TotalRecords  int                `json:"total_records"`
	NextPageToken string             `json:"next_page_token"`
	Meetings      []model.MeetingRef `json:"meetings"`
}

// ListMeetings returns every meeting of a user, following next_page_token.
func (c *Client) ListMeetings(ctx context.Context, userEmail, meetingType string) ([]model.MeetingRef, error) {
	path := "/users/" + userEmail + "/meetings"

	var out []model.MeetingRef
	token := ""
	for {
		q := url.Values{}
		if meetingType != "" {
			q.Set("type", meetingType)
		}
		q.Set("page_size", strconv.Itoa(c.pageSize))
		if token != "" {
			q.Set("next_page_token", token)
		}

		var page meetingsPage
		if err := c.get(ctx, path, q, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Meetings...)

		if page.NextPageToken == "" || page.NextPageToken == token {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// GetMeeting fetches GET /meetings/{id}.
func (c *Client) GetMeeting(ctx context.Context, meetingID int64) (model.RawMeeting, error) {
	var m model.RawMeeting
	if err := c.get(ctx, "/meetings/"+strconv.FormatInt(meetingID, 10), nil, &m); err != nil {
		return model.RawMeeting{}, err
	}
	return m, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("zoom %s: read body: %w", path, err)
	}

	appLog.Debug("zoom request",
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).String(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Path: path}
		var eb struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Message
		}
		appLog.Error("zoom request failed", apiErr, "path", path, "status", resp.StatusCode)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("zoom %s: decode: %w", path, err)
	}
	return nil
}
