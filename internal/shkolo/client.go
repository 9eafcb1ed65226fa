// Package shkolo is a client for the school-management service's HTTP API.
package shkolo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smileynet/shkolo/internal/refresh"
)

// Defaults for talking to the production service.
const (
	DefaultBaseURL   = "https://api.shkolo.bg"
	DefaultUserAgent = "Shkolo-app-iOS/1.43.3"
	DefaultTimeout   = 30 * time.Second
)

// APIError is a non-success HTTP status other than 401.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shkolo: API error (%d): %s", e.Status, e.Body)
}

// Client calls the service on behalf of one signed-in user.
type Client struct {
	baseURL    string
	userAgent  string
	http       *http.Client
	log        *zap.Logger
	token      string
	schoolYear int64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCredentials sets the bearer token and school year sent with each request.
func WithCredentials(token string, schoolYear int64) Option {
	return func(c *Client) {
		c.token = token
		c.schoolYear = schoolYear
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		http:      &http.Client{Timeout: DefaultTimeout},
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token returns the bearer token in use.
func (c *Client) Token() string { return c.token }

// SchoolYear returns the school year sent with each request.
func (c *Client) SchoolYear() int64 { return c.schoolYear }

func (c *Client) do(ctx context.Context, method, path string, body any, authorized bool, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shkolo: encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("shkolo: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("language", "bg")
	if authorized && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.schoolYear != 0 {
		req.Header.Set("School-Year", strconv.FormatInt(c.schoolYear, 10))
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("shkolo: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("shkolo: %s %s: %w", method, path, refresh.ErrAuthExpired)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("shkolo: reading %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("shkolo: decoding %s: %w: %v", path, refresh.ErrMalformed, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, true, out)
}

// Session is the result of a successful sign-in.
type Session struct {
	Token      string
	SchoolYear int64
	UserName   string
}

// ErrNoToken is returned when the service accepts a login but issues no token.
var ErrNoToken = errors.New("shkolo: no token received")

// Login signs in with a username and password, then picks the newest
// school year available to the account.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var lr loginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", loginRequest{Username: username, Password: password}, false, &lr); err != nil {
		return Session{}, err
	}
	if lr.Token == "" {
		if lr.Message != "" {
			return Session{}, fmt.Errorf("%w: %s", ErrNoToken, lr.Message)
		}
		return Session{}, ErrNoToken
	}
	c.token = lr.Token

	var uy usersAndYearsResponse
	if err := c.get(ctx, "/v1/auth/usersAndYears", &uy); err != nil {
		return Session{}, err
	}
	s := Session{Token: lr.Token}
	for _, u := range uy.Users {
		if s.UserName == "" {
			s.UserName = u.Names
		}
		for _, y := range u.Years {
			if y.ID > s.SchoolYear {
				s.SchoolYear = y.ID
			}
		}
		if s.SchoolYear != 0 {
			break
		}
	}
	c.schoolYear = s.SchoolYear
	return s, nil
}

// Logout ends the server-side session. Errors are ignored by the service's
// own apps, so callers may do the same.
func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/v1/auth/logout", struct{}{}, true, nil)
	c.token = ""
	c.schoolYear = 0
	return err
}

// CreateThread starts a new messenger conversation. The subject is taken
// from the first line of body.
func (c *Client) CreateThread(ctx context.Context, recipientIDs []int64, body string) error {
	if len(recipientIDs) == 0 {
		return errors.New("shkolo: no recipients")
	}
	req := createThreadRequest{
		RecipientIDs: recipientIDs,
		Subject:      subjectFromBody(body),
		Body:         body,
	}
	return c.do(ctx, http.MethodPost, "/v1/messenger/threads", req, true, nil)
}
