// Package credential resolves the single active provider secret.
//
// Resolution always walks groq, gemini, xai in that order: first through the
// process environment, then through the persisted record. Saving a key never
// reorders that walk, so an environment variable or a higher-precedence
// persisted leftover keeps winning over a freshly saved lower-precedence key.
package credential

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/suPer8Hu/speakup/internal/ai"
)

type Credential struct {
	Secret   string
	Provider ai.Tag
}

// Backend persists variable-name/value pairs.
type Backend interface {
	Load(ctx context.Context) (map[string]string, error)
	// Save sets name=value and removes drop in one atomic update.
	Save(ctx context.Context, name, value string, drop ...string) error
}

// varNames lists the variables that carry one provider's key, canonical
// first. Providers are walked in ai.Precedence order.
var varNames = map[ai.Tag][]string{
	ai.TagGroq:   {"GROQ_API_KEY"},
	ai.TagGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	ai.TagXAI:    {"XAI_API_KEY", "VITE_XAI_API_KEY"},
}

var ErrEmptySecret = errors.New("credential: secret is empty")

type Store struct {
	backend Backend
	getenv  func(string) string
}

type Option func(*Store)

// WithEnv replaces os.Getenv, mostly for tests.
func WithEnv(getenv func(string) string) Option {
	return func(s *Store) { s.getenv = getenv }
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, getenv: os.Getenv}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns nil, nil when no provider is configured.
func (s *Store) Get(ctx context.Context) (*Credential, error) {
	if c := resolve(s.getenv); c != nil {
		return c, nil
	}
	if s.backend == nil {
		return nil, nil
	}
	rec, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	return resolve(func(name string) string { return rec[name] }), nil
}

func (s *Store) Set(ctx context.Context, secret string, tag ai.Tag) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrEmptySecret
	}
	if s.backend == nil {
		return errors.New("credential: no persistence backend configured")
	}
	names, ok := varNames[tag]
	if !ok {
		return &ai.ConfigurationError{Tag: string(tag)}
	}
	return s.backend.Save(ctx, names[0], secret, names[1:]...)
}

func resolve(lookup func(string) string) *Credential {
	for _, tag := range ai.Precedence {
		for _, name := range varNames[tag] {
			if v := clean(lookup(name)); v != "" {
				return &Credential{Secret: v, Provider: tag}
			}
		}
	}
	return nil
}

// clean trims and strips one layer of matching quotes.
func clean(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			v = strings.TrimSpace(v[1 : len(v)-1])
		}
	}
	return v
}
