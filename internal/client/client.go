// Package client talks to a running wabridge daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Envelope is the daemon's reply wrapper.
type Envelope struct {
	Status   bool            `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
	Message  json.RawMessage `json:"message,omitempty"`
}

// APIError is a reply with a non-2xx status.
type APIError struct {
	Code     int
	Envelope Envelope
}

func (e *APIError) Error() string {
	detail := e.Envelope.Message
	if len(detail) == 0 {
		detail = e.Envelope.Response
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Code, strings.TrimSpace(string(detail)))
}

// Client wraps HTTP calls to the daemon.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for addr ("host:port" or a full URL).
func New(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, number, message string) (Envelope, error) {
	return c.post(ctx, "/send-message", map[string]string{"number": number, "message": message})
}

// SendMedia sends an image by URL.
func (c *Client) SendMedia(ctx context.Context, number, fileURL, caption string) (Envelope, error) {
	return c.post(ctx, "/send-media", map[string]string{"number": number, "file": fileURL, "caption": caption})
}

// AddMember adds number to a group.
func (c *Client) AddMember(ctx context.Context, groupID, number string) (Envelope, error) {
	return c.post(ctx, "/add-member", map[string]string{"groupId": groupID, "number": number})
}

// CheckNumber reports whether number has an account.
func (c *Client) CheckNumber(ctx context.Context, number string) (Envelope, error) {
	return c.get(ctx, "/check-number?number="+url.QueryEscape(number))
}

// Status returns the connection state.
func (c *Client) Status(ctx context.Context) (Envelope, error) {
	return c.get(ctx, "/status")
}

func (c *Client) post(ctx context.Context, path string, body any) (Envelope, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return Envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("call daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, fmt.Errorf("read reply: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode reply (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return env, &APIError{Code: resp.StatusCode, Envelope: env}
	}
	return env, nil
}
