// Package gateway is a thin client for the upstream messaging gateway's
// management API. The archive works entirely from pushed webhooks; this
// client only covers the read-only calls the status tooling needs.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// InstanceStatus is the gateway's report on the connected account.
type InstanceStatus struct {
	InstanceID string `json:"instance_id"`
	Phone      string `json:"phone"`
	State      string `json:"state"` // connected, disconnected, qr, ...
	Battery    int    `json:"battery,omitempty"`
}

// Group is one group chat the connected account participates in.
type Group struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

// Client talks to the gateway management API with bearer-token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. timeoutSec is floored at 5 seconds; verifyTLS=false
// disables certificate verification for gateways behind self-signed certs.
func New(baseURL, token string, timeoutSec int, verifyTLS bool) *Client {
	if timeoutSec < 5 {
		timeoutSec = 5
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   time.Duration(timeoutSec) * time.Second,
			Transport: transport,
		},
	}
}

// Configured reports whether a gateway base URL has been set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// InstanceStatus fetches the connection state of the gateway instance.
func (c *Client) InstanceStatus(ctx context.Context) (*InstanceStatus, error) {
	var status InstanceStatus
	if err := c.get(ctx, "/instance/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListGroups fetches the group chats visible to the connected account.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	if err := c.get(ctx, "/groups", &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// get performs one authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("gateway base URL is not configured")
	}
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build gateway URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway request %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response %s: %w", path, err)
	}
	return nil
}
