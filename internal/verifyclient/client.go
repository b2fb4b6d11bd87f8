// Package verifyclient resolves custom domains against a remote domains-api
// so the edge can run apart from the database.
package verifyclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edvin/domains/internal/core"
)

// VerifyPath is the lookup endpoint served by domains-api.
const VerifyPath = "/api/domains/verify"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type verifyResponse struct {
	Username string `json:"username"`
	Error    string `json:"error"`
}

// Resolve implements router.Resolver. A 404 is ErrNotConfigured; anything
// else that is not a 200 with a username is ErrInfrastructure.
func (c *Client) Resolve(ctx context.Context, host string) (string, error) {
	u := c.baseURL + VerifyPath + "?" + url.Values{"domain": {host}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", core.ErrInfrastructure, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: verify request: %w", core.ErrInfrastructure, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("resolve %s: %w", host, core.ErrNotConfigured)
	case resp.StatusCode == http.StatusBadRequest:
		return "", fmt.Errorf("resolve %q: %w", host, core.ErrInvalidInput)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: verify %s: status %d", core.ErrInfrastructure, host, resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", core.ErrInfrastructure, err)
	}
	if body.Username == "" {
		return "", fmt.Errorf("resolve %s: %w", host, core.ErrNotConfigured)
	}
	return body.Username, nil
}
