package client

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

	"medq/internal/admin"
	"medq/internal/auth"
	"medq/internal/questionnaire"

	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "http://localhost:3001/api"

// Client talks to the questionnaire backend. Every request carries the stored
// bearer token when one is present.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	log     logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
		tokens:  tokens,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Tokens() TokenStore { return c.tokens }

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

// Login exchanges credentials for a token and stores it.
func (c *Client) Login(ctx context.Context, username, password string) (*auth.User, error) {
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User == nil {
		return nil, errors.New("login: malformed response")
	}
	if err := c.tokens.Save(out.Token); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Me resolves the current user. Without a stored token it returns
// ErrUnauthenticated without calling the backend.
func (c *Client) Me(ctx context.Context) (*auth.User, error) {
	token, err := c.tokens.Load()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}

	var u auth.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		if StatusOf(err) == http.StatusUnauthorized {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return &u, nil
}

// Logout revokes the session on the backend and always clears the local token.
func (c *Client) Logout(ctx context.Context) error {
	token, err := c.tokens.Load()
	if err == nil && token != "" {
		if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
			c.log.WithError(err).Warn("session revoke failed, clearing local token anyway")
		}
	}
	return c.tokens.Clear()
}

func (c *Client) Questionnaires(ctx context.Context) ([]questionnaire.Summary, error) {
	var out []questionnaire.Summary
	if err := c.do(ctx, http.MethodGet, "/questionnaires", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Questionnaire(ctx context.Context, id int64) (*questionnaire.Detail, error) {
	var out questionnaire.Detail
	if err := c.do(ctx, http.MethodGet, "/questionnaires/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserResponses lists the current user's submissions, most recent first.
func (c *Client) UserResponses(ctx context.Context, questionnaireID int64) ([]questionnaire.ResponseSet, error) {
	var out []questionnaire.ResponseSet
	path := "/questionnaires/" + strconv.FormatInt(questionnaireID, 10) + "/user-responses"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type submitRequest struct {
	Responses map[int64]json.RawMessage `json:"responses"`
}

type submitResponse struct {
	Message     string                     `json:"message"`
	ResponseSet *questionnaire.ResponseSet `json:"response_set"`
}

// Submit posts already encoded answers keyed by question id.
func (c *Client) Submit(ctx context.Context, questionnaireID int64, responses map[int64]json.RawMessage) (*questionnaire.ResponseSet, error) {
	var out submitResponse
	path := "/questionnaires/" + strconv.FormatInt(questionnaireID, 10) + "/responses"
	if err := c.do(ctx, http.MethodPost, path, submitRequest{Responses: responses}, &out); err != nil {
		return nil, err
	}
	return out.ResponseSet, nil
}

func (c *Client) AdminUsers(ctx context.Context) ([]admin.UserSummary, error) {
	var out []admin.UserSummary
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AdminUserResponses(ctx context.Context, userID int64) ([]admin.QuestionnaireResponses, error) {
	var out []admin.QuestionnaireResponses
	path := "/admin/users/" + strconv.FormatInt(userID, 10) + "/responses"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminExport downloads the user's responses as an xlsx workbook.
func (c *Client) AdminExport(ctx context.Context, userID int64) ([]byte, error) {
	path := "/admin/users/" + strconv.FormatInt(userID, 10) + "/responses.xlsx"
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and turns non-2xx replies into *APIError.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.tokens.Load()
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("api call")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, readAPIError(resp)
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Message
		apiErr.Code = body.Code
	}
	return apiErr
}
