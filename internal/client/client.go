// Package client is a Go SDK for the storefront auth endpoints. Client
// implements store.AuthBackend, so an AuthStore can run against a remote
// storefront service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ayurmart/storefront/internal/models"
	"github.com/ayurmart/storefront/internal/store"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken starts the client with an existing access token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type subscriber struct {
	id int
	fn func(store.AuthEvent, *models.Session)
}

// Client talks to /api/auth/* and remembers the access token of the last sign-in.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu     sync.Mutex
	token  string
	subs   []subscriber
	nextID int
}

var _ store.AuthBackend = (*Client)(nil)

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current access token, or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// GetSession returns the current session, or nil when signed out or the
// token is no longer accepted.
func (c *Client) GetSession(ctx context.Context) (*models.Session, error) {
	if c.Token() == "" {
		return nil, nil
	}
	var session *models.Session
	if err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, &session); err != nil {
		return nil, err
	}
	if session == nil {
		c.setToken("")
	}
	return session, nil
}

func (c *Client) SignIn(ctx context.Context, req models.SignInRequest) (*models.Session, error) {
	return c.startSession(ctx, "/api/auth/signin", req)
}

func (c *Client) SignUp(ctx context.Context, req models.SignUpRequest) (*models.Session, error) {
	return c.startSession(ctx, "/api/auth/signup", req)
}

func (c *Client) startSession(ctx context.Context, path string, body any) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPost, path, body, &session); err != nil {
		return nil, err
	}
	c.setToken(session.AccessToken)
	c.emit(store.EventSignedIn, &session)
	return &session, nil
}

// SignOut forgets the token even when the request fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/signout", nil, nil)
	c.setToken("")
	c.emit(store.EventSignedOut, nil)
	return err
}

// OnAuthStateChange registers fn for sign-in and sign-out events.
func (c *Client) OnAuthStateChange(fn func(store.AuthEvent, *models.Session)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) emit(event store.AuthEvent, session *models.Session) {
	c.mu.Lock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(event, session)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// do sends a JSON request and decodes the envelope's data into out. Error
// envelopes are returned as *apperrors.AppError with the server's message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewInternal("auth service unavailable", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperrors.NewInternal("invalid response from auth service", err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		c.logger.Debug("Auth request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", env.Error),
		)
		return &apperrors.AppError{Kind: kindForStatus(resp.StatusCode), Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.NewInternal("invalid response from auth service", err)
	}
	return nil
}

func kindForStatus(status int) apperrors.Kind {
	switch status {
	case http.StatusBadRequest:
		return apperrors.KindValidation
	case http.StatusUnauthorized:
		return apperrors.KindUnauthorized
	case http.StatusNotFound:
		return apperrors.KindNotFound
	case http.StatusConflict:
		return apperrors.KindConflict
	default:
		return apperrors.KindInternal
	}
}
