package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"campkit/core"
	"campkit/enrollment"
)

// Option customizes a Client at construction.
type Option func(*Client)

// Client talks to a campkit server over HTTP, and over WebSocket for the
// event stream. It is safe for concurrent use.
type Client struct {
	base   string
	events string
	hc     *http.Client
	header http.Header
}

// NewClient returns a client for the API rooted at baseURL, including any
// path prefix, for example http://localhost:8080/api.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("sdk: base URL is required")
	}
	c := &Client{
		base:   base,
		events: eventsURL(base),
		hc:     &http.Client{Timeout: 30 * time.Second},
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithAuthToken sends the API key as a bearer token.
func WithAuthToken(token string) Option {
	return WithHeader("Authorization", bearer(token))
}

// WithAPIKey sends the API key in X-API-Key.
func WithAPIKey(key string) Option {
	return WithHeader("X-API-Key", strings.TrimSpace(key))
}

// WithHeader adds a header to every request, the event stream included.
// Empty names or values are ignored.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		if name == "" || value == "" {
			return
		}
		c.header.Set(name, value)
	}
}

func bearer(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

func userPath(userID string, rest ...string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrEmptyUserID
	}
	p := "/users/" + url.PathEscape(userID)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p, nil
}

// RecordAction scores one camper action.
func (c *Client) RecordAction(ctx context.Context, userID string, pc core.PointsContext) (ActionResult, error) {
	p, err := userPath(userID, "actions")
	if err != nil {
		return ActionResult{}, err
	}
	var out ActionResult
	err = c.doJSON(ctx, http.MethodPost, p, pc, &out)
	return out, err
}

// GetProgress fetches a camper's progress.
func (c *Client) GetProgress(ctx context.Context, userID string) (core.UserProgress, error) {
	p, err := userPath(userID, "progress")
	if err != nil {
		return core.UserProgress{}, err
	}
	var out core.UserProgress
	err = c.doJSON(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

// Dashboard fetches progress, level, badge collection, and enrollments in one call.
func (c *Client) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	p, err := userPath(userID, "dashboard")
	if err != nil {
		return Dashboard{}, err
	}
	var out Dashboard
	err = c.doJSON(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

// CompleteTrip records a finished trip and returns newly unlocked badges.
func (c *Client) CompleteTrip(ctx context.Context, userID, tripID string) ([]core.Badge, error) {
	p, err := userPath(userID, "trips", tripID, "complete")
	if err != nil {
		return nil, err
	}
	var out struct {
		Badges []core.Badge `json:"badges"`
	}
	err = c.doJSON(ctx, http.MethodPost, p, nil, &out)
	return out.Badges, err
}

// AwardBadge grants a catalog badge. Granting an owned badge succeeds.
func (c *Client) AwardBadge(ctx context.Context, userID, badgeID string) error {
	p, err := userPath(userID, "badges", badgeID)
	if err != nil {
		return err
	}
	var ack struct {
		OK bool `json:"ok"`
	}
	if err := c.doJSON(ctx, http.MethodPost, p, nil, &ack); err != nil {
		return err
	}
	if ack.OK {
		return nil
	}
	return fmt.Errorf("sdk: badge %s not granted", badgeID)
}

// Badges lists the badge catalog.
func (c *Client) Badges(ctx context.Context) ([]core.Badge, error) {
	var out []core.Badge
	err := c.doJSON(ctx, http.MethodGet, "/badges", nil, &out)
	return out, err
}

// Leaderboard returns the top n campers.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	err := c.doJSON(ctx, http.MethodGet, "/leaderboard?n="+strconv.Itoa(n), nil, &out)
	return out, err
}

// PutTrip creates or updates a trip. The enrolled count is kept by the server.
func (c *Client) PutTrip(ctx context.Context, trip enrollment.Trip) (enrollment.Trip, error) {
	body := map[string]any{"name": trip.Name, "capacity": trip.Capacity, "price": trip.Price, "starts_at": trip.StartsAt}
	var out enrollment.Trip
	err := c.doJSON(ctx, http.MethodPut, "/trips/"+url.PathEscape(trip.ID), body, &out)
	return out, err
}

// Availability asks for remaining seats. The answer is advisory.
func (c *Client) Availability(ctx context.Context, tripID string) (enrollment.Availability, error) {
	var out enrollment.Availability
	err := c.doJSON(ctx, http.MethodGet, "/trips/"+url.PathEscape(tripID)+"/availability", nil, &out)
	return out, err
}

// GetEnrollment fetches one enrollment.
func (c *Client) GetEnrollment(ctx context.Context, id string) (enrollment.Enrollment, error) {
	var out enrollment.Enrollment
	err := c.doJSON(ctx, http.MethodGet, "/enrollments/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListEnrollments lists a camper's enrollments, newest first.
func (c *Client) ListEnrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	p, err := userPath(userID, "enrollments")
	if err != nil {
		return nil, err
	}
	var out []enrollment.Enrollment
	err = c.doJSON(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

// SetEnrollmentStatus moves an enrollment along its lifecycle.
func (c *Client) SetEnrollmentStatus(ctx context.Context, id string, status enrollment.Status) (enrollment.Enrollment, error) {
	var out enrollment.Enrollment
	err := c.doJSON(ctx, http.MethodPost, "/enrollments/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &out)
	return out, err
}

// AttachProof uploads a payment proof for an existing enrollment.
func (c *Client) AttachProof(ctx context.Context, id string, file enrollment.File) (enrollment.Enrollment, error) {
	var out enrollment.Enrollment
	err := c.upload(ctx, "/enrollments/"+url.PathEscape(id)+"/proof", file, &out)
	return out, err
}

// Health reports the server status and its per-dependency checks. An
// unhealthy server still answers with its checks, so only transport and
// decode failures are errors.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil, "")
	if err != nil {
		return HealthStatus{}, err
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer res.Body.Close()

	var status HealthStatus
	err = json.NewDecoder(res.Body).Decode(&status)
	return status, err
}

// EventFilter narrows the event stream. The zero value receives everything.
type EventFilter struct {
	User  string
	Types []core.EventType
}

// SubscribeEvents streams matching events until ctx ends or the server
// closes the connection, then closes the channel. Events arriving while the
// channel is full are dropped.
func (c *Client) SubscribeEvents(ctx context.Context, filter EventFilter) (<-chan core.Event, error) {
	if c.events == "" {
		return nil, errors.New("sdk: event stream needs an http or https base URL")
	}
	u, err := url.Parse(c.events)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if filter.User != "" {
		q.Set("user", filter.User)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		q.Set("types", strings.Join(types, ","))
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), c.header)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// unblocks ReadJSON
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, route string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+route, body)
	if err != nil {
		return nil, err
	}
	for name, values := range c.header {
		req.Header[name] = append([]string(nil), values...)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, route string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, route, body, contentType)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) upload(ctx context.Context, route string, file enrollment.File, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	ct := file.ContentType
	if ct == "" {
		ct = file.DetectContentType()
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(file.Data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, route, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return decodeJSON(res, out)
}

// eventsURL maps the API base onto its /ws endpoint, or "" when the scheme
// has no WebSocket counterpart.
func eventsURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	schemes := map[string]string{"http": "ws", "https": "wss", "ws": "ws", "wss": "wss"}
	scheme, ok := schemes[u.Scheme]
	if !ok {
		return ""
	}
	u.Scheme = scheme
	u.Path = path.Join("/", u.Path, "ws")
	return u.String()
}
