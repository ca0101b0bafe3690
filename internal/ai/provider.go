package ai

import (
	"fmt"
	"net/http"
	"strings"
)

type Tag string

const (
	TagGroq   Tag = "groq"
	TagGemini Tag = "gemini"
	TagXAI    Tag = "xai"
)

// Precedence is the fixed credential resolution order.
var Precedence = []Tag{TagGroq, TagGemini, TagXAI}

const DefaultMaxTokens = 1000

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-agnostic request accepted by every adapter.
type ChatRequest struct {
	Model     string    `json:"model,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Messages  []Message `json:"messages"`
}

type AuthStyle int

const (
	AuthBearer AuthStyle = iota
	AuthQueryParam
)

func (a AuthStyle) String() string {
	switch a {
	case AuthBearer:
		return "bearer"
	case AuthQueryParam:
		return "query-param"
	default:
		return "unknown"
	}
}

// Request is a fully built upstream call.
type Request struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Adapter maps provider-agnostic chat requests onto one provider's wire format.
type Adapter interface {
	Tag() Tag
	BaseURL() string
	Endpoint() string
	AuthStyle() AuthStyle
	Model() string
	SupportsTranscription() bool
	BuildRequest(key string, req ChatRequest) (*Request, error)
	ParseResponse(body []byte) (string, error)
}

// ConfigurationError reports an unknown or unsupported provider tag.
type ConfigurationError struct {
	Tag    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ai: provider %q: %s", e.Tag, e.Reason)
	}
	return fmt.Sprintf("ai: unknown provider %q", e.Tag)
}

func ParseTag(s string) (Tag, error) {
	t := Tag(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TagGroq, TagGemini, TagXAI:
		return t, nil
	}
	return "", &ConfigurationError{Tag: s}
}
