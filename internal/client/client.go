// Package client talks to a running gateway over HTTP. It satisfies the
// conversation session's Sender and Transcriber ports.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/gateway"
)

const DefaultTimeout = 45 * time.Second

type Client struct {
	mu      sync.RWMutex
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: normalize(baseURL), http: &http.Client{Timeout: DefaultTimeout}}
	for _, o := range opts {
		o(c)
	}
	return c
}

func normalize(u string) string { return strings.TrimRight(strings.TrimSpace(u), "/") }

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) SetBaseURL(u string) {
	c.mu.Lock()
	c.baseURL = normalize(u)
	c.mu.Unlock()
}

type KeyStatus struct {
	HasKey   bool   `json:"hasKey"`
	Provider ai.Tag `json:"provider,omitempty"`
}

type SaveKeyResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Provider ai.Tag `json:"provider,omitempty"`
}

type ChatResponse struct {
	ID       string `json:"id,omitempty"`
	Provider ai.Tag `json:"provider"`
	Model    string `json:"model"`
	Choices  []struct {
		Index   int        `json:"index"`
		Message ai.Message `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error struct {
		Message  string `json:"message"`
		Type     string `json:"type"`
		Provider ai.Tag `json:"provider"`
		Reason   string `json:"reason"`
	} `json:"error"`
}

func (c *Client) CheckKey(ctx context.Context) (*KeyStatus, error) {
	var out KeyStatus
	if err := c.do(ctx, "check-key", http.MethodGet, "/api/check-key", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveKey stores apiKey on the server. An empty provider means gemini.
func (c *Client) SaveKey(ctx context.Context, apiKey string, provider ai.Tag) (*SaveKeyResult, error) {
	body := map[string]string{"apiKey": apiKey}
	if provider != "" {
		body["provider"] = string(provider)
	}
	var out SaveKeyResult
	if err := c.do(ctx, "save-key", http.MethodPost, "/api/save-key", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Send(ctx context.Context, req ai.ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, "chat", http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	resp, err := c.Send(ctx, ai.ChatRequest{MaxTokens: ai.DefaultMaxTokens, Messages: messages})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &gateway.UpstreamError{Provider: resp.Provider, Status: http.StatusBadGateway, Message: "empty response"}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	body := map[string]string{
		"audioBase64": base64.StdEncoding.EncodeToString(audio),
		"mimeType":    mimeType,
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, "transcription", http.MethodPost, "/api/transcribe", body, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, op, c.http.Timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return transportError(ctx, op, c.http.Timeout, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &gateway.UpstreamError{Status: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}

func transportError(ctx context.Context, op string, budget time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &gateway.TimeoutError{Op: op}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &gateway.TimeoutError{Op: op, Budget: budget}
	}
	return &gateway.ConnectionError{Err: err}
}

// decodeError rebuilds the gateway's typed error from an error envelope.
func decodeError(status int, raw []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(raw, &env)
	e := env.Error
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch e.Type {
	case "missing_credential":
		return gateway.ErrMissingCredential
	case "configuration":
		return &ai.ConfigurationError{Tag: string(e.Provider), Reason: msg}
	case "timeout":
		return &gateway.TimeoutError{Op: "upstream"}
	case "connection":
		return &gateway.ConnectionError{Provider: e.Provider, Err: errors.New(msg)}
	case "unsupported_provider":
		return &gateway.UnsupportedProviderError{Provider: e.Provider}
	case "transcription":
		return &gateway.TranscriptionError{Reason: e.Reason}
	}
	if status == http.StatusUnauthorized && e.Type == "" && strings.Contains(strings.ToLower(msg), "no api key") {
		return gateway.ErrMissingCredential
	}
	return &gateway.UpstreamError{Provider: e.Provider, Status: status, Message: msg}
}
