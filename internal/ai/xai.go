package ai

import "strings"

const (
	XAIBaseURL   = "https://api.x.ai/v1"
	XAIChatModel = "grok-3-mini"
)

// XAIAdapter honours a caller-supplied model; the other adapters pin theirs.
type XAIAdapter struct {
	compat
}

func NewXAIAdapter(baseURL string) *XAIAdapter {
	return &XAIAdapter{compat{name: TagXAI, baseURL: trimBase(baseURL, XAIBaseURL), model: XAIChatModel}}
}

func (a *XAIAdapter) AuthStyle() AuthStyle { return AuthBearer }

func (a *XAIAdapter) BuildRequest(key string, req ChatRequest) (*Request, error) {
	if err := a.check(key, req); err != nil {
		return nil, err
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = a.model
	}
	b, err := a.body(model, req)
	if err != nil {
		return nil, err
	}
	h := jsonHeader()
	h.Set("Authorization", "Bearer "+key)
	return &Request{URL: a.Endpoint(), Header: h, Body: b}, nil
}
