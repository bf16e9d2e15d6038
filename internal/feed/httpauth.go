package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/calebward/oddsfeed/internal/telemetry"
)

const tokenMaxAge = 55 * time.Minute // refresh 5 min before the 60-min expiry

// TokenProvider implements Authenticator against the anonymous-auth
// endpoint the books expose: POST an empty JSON body, get back a
// short-lived bearer token. The token is cached until near expiry and
// concurrent refreshes collapse to a single request, so several
// sessions sharing one provider never stampede the auth endpoint.
type TokenProvider struct {
	authURL string
	client  *http.Client
	group   singleflight.Group

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

func NewTokenProvider(authURL string) *TokenProvider {
	return &TokenProvider{
		authURL: authURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Credential returns a cached bearer token if still fresh, otherwise
// fetches a new one.
func (tp *TokenProvider) Credential(ctx context.Context) (string, error) {
	tp.mu.Lock()
	if tp.token != "" && time.Since(tp.fetchedAt) < tokenMaxAge {
		tok := tp.token
		tp.mu.Unlock()
		return tok, nil
	}
	tp.mu.Unlock()

	v, err, shared := tp.group.Do("token", func() (any, error) {
		tok, err := tp.fetch(ctx)
		if err != nil {
			return nil, err
		}
		tp.mu.Lock()
		tp.token = tok
		tp.fetchedAt = time.Now()
		tp.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		telemetry.Debugf("auth: token fetch shared across sessions")
	}
	return v.(string), nil
}

// Invalidate drops the cached token after the server rejects it. The
// next Credential call fetches a fresh one.
func (tp *TokenProvider) Invalidate() {
	tp.mu.Lock()
	tp.token = ""
	tp.fetchedAt = time.Time{}
	tp.mu.Unlock()
}

func (tp *TokenProvider) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tp.authURL, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tp.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("auth status %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("empty token in auth response")
	}
	return result.Token, nil
}
