package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/reservation/internal/common"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// HTTPClient talks to the reservation auth API and keeps the current token
// pair in memory. It is safe for concurrent use.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewHTTPClient validates baseURL and returns a client whose calls are
// bounded by timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	var resp Account
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates and stores the returned token pair.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*Account, error) {
	var resp tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	c.setTokens(resp.AccessToken, resp.RefreshToken)
	return &resp.Account, nil
}

// Refresh exchanges the stored refresh token for a new pair. A rejected
// token clears the session, since the server has already revoked it.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}

	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/refresh-token", "", map[string]string{"refreshToken": refresh}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			c.Logout()
		}
		return err
	}
	c.setTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (c *HTTPClient) ForgotPassword(ctx context.Context, email string) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": email}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *HTTPClient) ResetPassword(ctx context.Context, token, password string) (string, error) {
	var resp messageResponse
	body := map[string]string{"token": token, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/reset-password", "", body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Me returns the current session. An access token rejected with 401 is
// refreshed once and the call repeated with the new token.
func (c *HTTPClient) Me(ctx context.Context) (*Session, error) {
	access, _ := c.tokens()
	if access == "" {
		return nil, ErrNotLoggedIn
	}

	var resp Session
	err := c.do(ctx, http.MethodGet, "/auth/me", access, nil, &resp)
	if errors.Is(err, ErrUnauthorized) {
		if rerr := c.Refresh(ctx); rerr != nil {
			return nil, rerr
		}
		access, _ = c.tokens()
		err = c.do(ctx, http.MethodGet, "/auth/me", access, nil, &resp)
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout forgets the local token pair.
func (c *HTTPClient) Logout() {
	c.setTokens("", "")
}

func (c *HTTPClient) LoggedIn() bool {
	access, _ := c.tokens()
	return access != ""
}

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) setTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = access, refresh
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg messageResponse
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil || msg.Message == "" {
			msg.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
