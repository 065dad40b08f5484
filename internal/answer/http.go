// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxUpstreamBody bounds the response read from an upstream service.
const maxUpstreamBody = 4 << 20

// HTTPBackend forwards questions to an external retrieval service:
//
//	POST {base}/answer {"question", "session_id", "history"} -> Result
//	GET  {base}/health
type HTTPBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPBackend creates a backend for the service at baseURL. A non-empty
// apiKey is sent as a bearer token.
func NewHTTPBackend(baseURL, apiKey string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Backend.
func (b *HTTPBackend) Name() string { return "http:" + b.baseURL }

type upstreamRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	History   []Turn `json:"history,omitempty"`
}

// Answer implements Backend.
func (b *HTTPBackend) Answer(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(upstreamRequest{
		Question:  req.Question,
		SessionID: req.SessionID,
		History:   req.History,
	})
	if err != nil {
		return nil, b.fail("answer", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/answer", bytes.NewReader(body))
	if err != nil {
		return nil, b.fail("answer", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	b.authorize(httpReq)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, b.fail("answer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, b.fail("answer", fmt.Errorf("upstream status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUpstreamBody)).Decode(&result); err != nil {
		return nil, b.fail("answer", fmt.Errorf("decode response: %w", err))
	}
	if strings.TrimSpace(result.Answer) == "" {
		return nil, b.fail("answer", ErrEmptyAnswer)
	}
	if result.Sources == nil {
		result.Sources = []Source{}
	}
	return &result, nil
}

// Ping implements Backend.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return b.fail("ping", err)
	}
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return b.fail("ping", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return b.fail("ping", fmt.Errorf("upstream status %s", resp.Status))
	}
	return nil
}

func (b *HTTPBackend) authorize(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

func (b *HTTPBackend) fail(op string, err error) error {
	return &BackendError{Backend: b.Name(), Op: op, Cause: err}
}
