package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// compat holds what the OpenAI-compatible chat/completions providers share.
// Each provider type embeds it and decides auth placement and model choice.
type compat struct {
	name    Tag
	baseURL string
	model   string
}

type compatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatChatReq struct {
	Model     string      `json:"model"`
	Messages  []compatMsg `json:"messages"`
	MaxTokens int         `json:"max_tokens"`
}

type compatChatResp struct {
	Choices []struct {
		Message compatMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c compat) Tag() Tag { return c.name }
func (c compat) BaseURL() string { return c.baseURL }
func (c compat) Model() string { return c.model }
func (c compat) Endpoint() string { return c.baseURL + "/chat/completions" }
func (c compat) SupportsTranscription() bool { return false }

func (c compat) body(model string, req ChatRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	out := compatChatReq{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: func() []compatMsg {
			msgs := make([]compatMsg, 0, len(req.Messages))
			for _, m := range req.Messages {
				msgs = append(msgs, compatMsg{Role: m.Role, Content: m.Content})
			}
			return msgs
		}(),
	}
	return json.Marshal(out)
}

func (c compat) check(key string, req ChatRequest) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: api key is required", c.name)
	}
	if len(req.Messages) == 0 {
		return fmt.Errorf("%s: at least one message is required", c.name)
	}
	return nil
}

func (c compat) ParseResponse(body []byte) (string, error) {
	var decoded compatChatResp
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", c.name)
	}
	return decoded.Choices[0].Message.Content, nil
}

func jsonHeader() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}

func trimBase(baseURL, def string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = def
	}
	return strings.TrimRight(baseURL, "/")
}
