package gateway

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

	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/model"
)

// Domain errors surfaced from gateway status codes.
var (
	ErrUnauthorized = errors.New("gateway rejected credentials or token")
	ErrForbidden    = errors.New("gateway denied access")
	ErrNotFound     = errors.New("resource not found on gateway")
	ErrUnavailable  = errors.New("gateway unavailable")
)

// Client is the outbound interface the session controller depends on, kept
// narrow so tests can run against a small fake.
type Client interface {
	FetchQuiz(ctx context.Context, token, blockID string) (*model.QuizPaper, error)
	Autosave(ctx context.Context, token string, snap model.ProgressSnapshot) error
	SubmitResult(ctx context.Context, token string, payload model.ResultPayload) (*model.ResultSummary, error)
}

// AuthAPI is the outbound interface the auth service depends on.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	Register(ctx context.Context, req model.RegisterRequest) (string, *model.User, error)
	Logout(ctx context.Context, token string) error
	Profile(ctx context.Context, token string) (*model.User, error)
}

// BrowseAPI covers the read-only passthrough endpoints.
type BrowseAPI interface {
	ListBlocks(ctx context.Context, token string) ([]model.Block, error)
	Results(ctx context.Context, token string) (json.RawMessage, error)
	RatingsByPeriod(ctx context.Context, token, period string) (json.RawMessage, error)
}

// authEnvelope is the core API's auth response wrapper.
type authEnvelope struct {
	Message string          `json:"message"`
	Token   string          `json:"token,omitempty"`
	User    *model.User     `json:"user,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// HTTPClient talks to the core API over HTTP with bearer-token auth.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

var (
	_ Client    = (*HTTPClient)(nil)
	_ AuthAPI   = (*HTTPClient)(nil)
	_ BrowseAPI = (*HTTPClient)(nil)
)

// NewHTTPClient creates a gateway client for the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "gateway_client").Logger(),
	}
}

// ─── Auth operations ────────────────────────────────────────────────

// Login verifies credentials upstream and returns the upstream token and profile.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	body := map[string]string{"email": email, "password": password}

	var env authEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &env); err != nil {
		return "", nil, err
	}
	if env.Token == "" {
		return "", nil, fmt.Errorf("login response missing token: %s", env.Message)
	}
	return env.Token, env.User, nil
}

// Register creates a new user upstream and returns the fresh token.
func (c *HTTPClient) Register(ctx context.Context, req model.RegisterRequest) (string, *model.User, error) {
	var env authEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &env); err != nil {
		return "", nil, err
	}
	return env.Token, env.User, nil
}

// Logout invalidates the upstream token. Best effort, the local session is
// cleared regardless.
func (c *HTTPClient) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// Profile fetches the current user's profile.
func (c *HTTPClient) Profile(ctx context.Context, token string) (*model.User, error) {
	var env authEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/profile", token, nil, &env); err != nil {
		return nil, err
	}
	if env.User != nil {
		return env.User, nil
	}
	// Some deployments return the profile unwrapped.
	var user model.User
	if err := json.Unmarshal(env.Data, &user); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &user, nil
}

// ─── Quiz operations ────────────────────────────────────────────────

// FetchQuiz retrieves the full question set for a block.
func (c *HTTPClient) FetchQuiz(ctx context.Context, token, blockID string) (*model.QuizPaper, error) {
	var paper model.QuizPaper
	path := fmt.Sprintf("/blocks/%s/quiz", blockID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &paper); err != nil {
		return nil, err
	}
	return &paper, nil
}

// Autosave pushes a partial-progress snapshot. The acknowledgment body is
// discarded; callers treat delivery as best-effort.
func (c *HTTPClient) Autosave(ctx context.Context, token string, snap model.ProgressSnapshot) error {
	return c.do(ctx, http.MethodPost, "/quiz/autosave", token, snap, nil)
}

// SubmitResult submits the final answers and returns the scored summary.
func (c *HTTPClient) SubmitResult(ctx context.Context, token string, payload model.ResultPayload) (*model.ResultSummary, error) {
	var summary model.ResultSummary
	if err := c.do(ctx, http.MethodPost, "/quiz/result", token, payload, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ─── Browse/passthrough operations ──────────────────────────────────

// ListBlocks fetches all blocks visible to the user.
func (c *HTTPClient) ListBlocks(ctx context.Context, token string) ([]model.Block, error) {
	var blocks []model.Block
	if err := c.do(ctx, http.MethodGet, "/blocks", token, nil, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// Results fetches the user's past quiz results.
func (c *HTTPClient) Results(ctx context.Context, token string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/quiz/results", token, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// RatingsByPeriod fetches the platform rankings for a period (e.g. "weekly").
func (c *HTTPClient) RatingsByPeriod(ctx context.Context, token, period string) (json.RawMessage, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/quiz/ratings/%s", period)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ─── Transport ──────────────────────────────────────────────────────

func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		// Drain a little of the body for the log, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("body", string(snippet)).
			Msg("Gateway error response")
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return ErrUnavailable
	default:
		return fmt.Errorf("gateway returned status %d", code)
	}
}
