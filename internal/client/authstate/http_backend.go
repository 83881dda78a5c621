package authstate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"
	"objettrouve-service/internal/pkg/response"
)

// HTTPBackend talks to the auth endpoints and keeps the session cookie in a jar.
type HTTPBackend struct {
	baseURL *url.URL
	client  *http.Client
}

// NewHTTPBackend builds a backend for baseURL (e.g. "http://localhost:8000").
// A nil client gets a 10s timeout and a fresh cookie jar.
func NewHTTPBackend(baseURL string, client *http.Client) (*HTTPBackend, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client.Jar = jar
	}

	return &HTTPBackend{baseURL: u, client: client}, nil
}

// Jar exposes the cookie jar so other connections (Watch) share the session
func (b *HTTPBackend) Jar() http.CookieJar {
	return b.client.Jar
}

func (b *HTTPBackend) SignIn(ctx context.Context, email, password string) (*auth.Result, error) {
	body, err := json.Marshal(auth.SignInRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	resp, err := b.do(ctx, http.MethodPost, "/api/auth/signin", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result auth.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode sign-in response (status %d): %w", resp.StatusCode, err)
	}
	return &result, nil
}

// CurrentUser returns ErrUnauthenticated on 401
func (b *HTTPBackend) CurrentUser(ctx context.Context) (*auth.Identity, error) {
	resp, err := b.do(ctx, http.MethodGet, "/api/auth/user", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthenticated
	}

	var envelope struct {
		response.Response
		Data *auth.Identity `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode current user (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || envelope.Data == nil {
		return nil, xerrors.New(xerrors.KindProviderError,
			fmt.Sprintf("current user request failed with status %d: %s", resp.StatusCode, envelope.Message))
	}
	return envelope.Data, nil
}

// SignOut treats any HTTP response as delivered; only transport errors are returned
func (b *HTTPBackend) SignOut(ctx context.Context) error {
	resp, err := b.do(ctx, http.MethodPost, "/api/auth/signout", nil)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL.String()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, xerrors.WrapKind(xerrors.KindProviderUnavailable, "auth server unreachable", err)
	}
	return resp, nil
}
