package ai

import (
	"fmt"
	"sort"
	"sync"
)

// Endpoints overrides provider base URLs; empty fields fall back to the public APIs.
type Endpoints struct {
	Groq   string
	Gemini string
	XAI    string
}

type Registry struct {
	mu       sync.RWMutex
	adapters map[Tag]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Tag]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry registers groq, gemini and xai.
func DefaultRegistry(ep Endpoints) *Registry {
	return NewRegistry(
		NewGroqAdapter(ep.Groq),
		NewGeminiAdapter(ep.Gemini),
		NewXAIAdapter(ep.XAI),
	)
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Tag()] = a
}

func (r *Registry) Resolve(tag Tag) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{Tag: string(tag)}
	}
	return a, nil
}

func (r *Registry) Tags() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tag, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate enforces that exactly one registered provider does transcription.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var capable []Tag
	for t, a := range r.adapters {
		if a.SupportsTranscription() {
			capable = append(capable, t)
		}
	}
	if len(capable) != 1 {
		return fmt.Errorf("ai: expected exactly one transcription provider, found %d %v", len(capable), capable)
	}
	return nil
}
