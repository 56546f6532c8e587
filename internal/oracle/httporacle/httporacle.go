// Package httporacle talks to a remote oracle service over JSON/HTTP:
// POST {endpoint}/decide and POST {endpoint}/interact.
package httporacle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avatarsim.ai/internal/oracle"
)

const maxBody = 1 << 20

type Client struct {
	endpoint string
	http     *http.Client
}

func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Decide(ctx context.Context, req oracle.DecisionRequest) (oracle.Decision, error) {
	body, err := c.post(ctx, "/decide", req.Credential, req)
	if err != nil {
		return oracle.Decision{}, err
	}
	return oracle.ParseDecision(body)
}

func (c *Client) Interact(ctx context.Context, req oracle.InteractionRequest) (oracle.InteractionResult, error) {
	body, err := c.post(ctx, "/interact", req.Credential, req)
	if err != nil {
		return oracle.InteractionResult{}, err
	}
	return oracle.ParseInteraction(body)
}

func (c *Client) post(ctx context.Context, path, credential string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if credential != "" {
		hreq.Header.Set("Authorization", "Bearer "+credential)
	}
	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("oracle %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("oracle %s: read: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("oracle %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
