// Package gateway proxies chat and transcription calls to whichever provider
// the credential store currently resolves.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/credential"
	"github.com/suPer8Hu/speakup/internal/logging"
)

const (
	DefaultUpstreamTimeout = 90 * time.Second

	maxErrorBody    = 4 * 1024
	maxResponseBody = 8 << 20
)

// CredentialSource is satisfied by *credential.Store.
type CredentialSource interface {
	Get(ctx context.Context) (*credential.Credential, error)
}

type Options struct {
	Client       *http.Client
	Logger       *zap.Logger
	SystemPrompt string
	MaxTokens    int
}

type Reply struct {
	Content  string
	Provider ai.Tag
	Model    string
}

type ChatGateway struct {
	creds        CredentialSource
	registry     *ai.Registry
	client       *http.Client
	log          *zap.Logger
	systemPrompt string
	maxTokens    int
}

func NewChatGateway(creds CredentialSource, registry *ai.Registry, opts Options) *ChatGateway {
	g := &ChatGateway{
		creds:        creds,
		registry:     registry,
		client:       opts.Client,
		log:          opts.Logger,
		systemPrompt: strings.TrimSpace(opts.SystemPrompt),
		maxTokens:    opts.MaxTokens,
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: DefaultUpstreamTimeout}
	}
	g.log = logging.OrNop(g.log)
	if g.maxTokens <= 0 {
		g.maxTokens = ai.DefaultMaxTokens
	}
	return g
}

// Send makes exactly one upstream call. There are no retries.
func (g *ChatGateway) Send(ctx context.Context, req ai.ChatRequest) (*Reply, error) {
	cred, err := g.creds.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrMissingCredential
	}
	adapter, err := g.registry.Resolve(cred.Provider)
	if err != nil {
		return nil, err
	}

	req.Messages = g.withSystem(req.Messages)
	if req.MaxTokens <= 0 {
		req.MaxTokens = g.maxTokens
	}
	built, err := adapter.BuildRequest(cred.Secret, req)
	if err != nil {
		return nil, &ai.ConfigurationError{Tag: string(cred.Provider), Reason: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, built.URL, bytes.NewReader(built.Body))
	if err != nil {
		return nil, &ai.ConfigurationError{Tag: string(cred.Provider), Reason: err.Error()}
	}
	httpReq.Header = built.Header

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, cred.Provider, "chat", g.client.Timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		g.log.Warn("upstream rejected chat",
			zap.String("provider", string(cred.Provider)),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(start)),
		)
		return nil, &UpstreamError{
			Provider: cred.Provider,
			Status:   resp.StatusCode,
			Message:  upstreamMessage(body, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, transportError(ctx, cred.Provider, "chat", g.client.Timeout, err)
	}
	content, err := adapter.ParseResponse(body)
	if err != nil {
		return nil, &UpstreamError{Provider: cred.Provider, Status: http.StatusBadGateway, Message: err.Error()}
	}

	model := adapter.Model()
	if cred.Provider == ai.TagXAI && strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}
	g.log.Info("chat completed",
		zap.String("provider", string(cred.Provider)),
		zap.String("model", model),
		zap.Int("messages", len(req.Messages)),
		zap.Duration("latency", time.Since(start)),
	)
	return &Reply{Content: content, Provider: cred.Provider, Model: model}, nil
}

// Chat lets the gateway stand in for a remote sender inside the same process.
func (g *ChatGateway) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	reply, err := g.Send(ctx, ai.ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

func (g *ChatGateway) withSystem(msgs []ai.Message) []ai.Message {
	if g.systemPrompt == "" || (len(msgs) > 0 && msgs[0].Role == "system") {
		return msgs
	}
	out := make([]ai.Message, 0, len(msgs)+1)
	out = append(out, ai.Message{Role: "system", Content: g.systemPrompt})
	return append(out, msgs...)
}

func transportError(ctx context.Context, provider ai.Tag, op string, budget time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op}
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &TimeoutError{Op: op, Budget: budget}
	}
	return &ConnectionError{Provider: provider, Err: err}
}

// upstreamMessage digs the human readable part out of a provider error body.
func upstreamMessage(body []byte, status int) string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return http.StatusText(status)
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		// gemini sometimes wraps the envelope in an array
		if arr, ok := decoded.([]any); ok && len(arr) > 0 {
			decoded = arr[0]
		}
		if obj, ok := decoded.(map[string]any); ok {
			if e, ok := obj["error"].(map[string]any); ok {
				if m, ok := e["message"].(string); ok && m != "" {
					return m
				}
			}
			if m, ok := obj["message"].(string); ok && m != "" {
				return m
			}
			if m, ok := obj["error"].(string); ok && m != "" {
				return m
			}
		}
	}
	return raw
}
