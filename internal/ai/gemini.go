package ai

import "net/url"

const (
	GeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta/openai"
	GeminiChatModel = "gemini-1.5-flash"
)

// GeminiAdapter talks to the OpenAI-compatible Gemini endpoint, which takes
// the key as a query parameter instead of an Authorization header.
type GeminiAdapter struct {
	compat
}

func NewGeminiAdapter(baseURL string) *GeminiAdapter {
	return &GeminiAdapter{compat{name: TagGemini, baseURL: trimBase(baseURL, GeminiBaseURL), model: GeminiChatModel}}
}

func (a *GeminiAdapter) AuthStyle() AuthStyle { return AuthQueryParam }

func (a *GeminiAdapter) BuildRequest(key string, req ChatRequest) (*Request, error) {
	if err := a.check(key, req); err != nil {
		return nil, err
	}
	b, err := a.body(a.model, req)
	if err != nil {
		return nil, err
	}
	return &Request{
		URL:    a.Endpoint() + "?key=" + url.QueryEscape(key),
		Header: jsonHeader(),
		Body:   b,
	}, nil
}
