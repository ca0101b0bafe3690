package ai

const (
	GroqBaseURL            = "https://api.groq.com/openai/v1"
	GroqChatModel          = "llama-3.3-70b-versatile"
	GroqTranscriptionModel = "whisper-large-v3-turbo"
)

// GroqAdapter is the only provider with speech-to-text.
type GroqAdapter struct {
	compat
}

func NewGroqAdapter(baseURL string) *GroqAdapter {
	return &GroqAdapter{compat{name: TagGroq, baseURL: trimBase(baseURL, GroqBaseURL), model: GroqChatModel}}
}

func (a *GroqAdapter) AuthStyle() AuthStyle { return AuthBearer }
func (a *GroqAdapter) SupportsTranscription() bool { return true }

func (a *GroqAdapter) TranscriptionModel() string { return GroqTranscriptionModel }

func (a *GroqAdapter) BuildRequest(key string, req ChatRequest) (*Request, error) {
	if err := a.check(key, req); err != nil {
		return nil, err
	}
	b, err := a.body(a.model, req)
	if err != nil {
		return nil, err
	}
	h := jsonHeader()
	h.Set("Authorization", "Bearer "+key)
	return &Request{URL: a.Endpoint(), Header: h, Body: b}, nil
}
