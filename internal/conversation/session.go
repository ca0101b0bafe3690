// Package conversation keeps the visible message history of one practice
// session and drives the chat sender with at most one call in flight.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/common"
	"github.com/suPer8Hu/speakup/internal/logging"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	DefaultTimeout = 45 * time.Second

	Greeting = "Hi! I'm your English conversation partner. What would you like to talk about today?"
)

type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

type Message struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Kind     Kind   `json:"kind"`
	Content  string `json:"content"`
	AudioRef string `json:"audio_ref,omitempty"`
}

type Sender interface {
	Chat(ctx context.Context, messages []ai.Message) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Speaker returns once the text has finished playing.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type Options struct {
	SystemPrompt string
	Speaker      Speaker
	AutoSpeak    bool
	Timeout      time.Duration
	Logger       *zap.Logger
}

type SubmitOptions struct {
	// SkipHistoryAppend rewrites the latest user message instead of adding one.
	SkipHistoryAppend bool
	Kind              Kind
	AudioRef          string
}

type Session struct {
	sender       Sender
	speaker      Speaker
	systemPrompt string
	timeout      time.Duration
	log          *zap.Logger

	mu        sync.Mutex
	history   []Message
	inFlight  bool
	autoSpeak bool
	onChange  func([]Message)
}

func NewSession(sender Sender, opts Options) *Session {
	s := &Session{
		sender:       sender,
		speaker:      opts.Speaker,
		systemPrompt: strings.TrimSpace(opts.SystemPrompt),
		timeout:      opts.Timeout,
		log:          opts.Logger,
		autoSpeak:    opts.AutoSpeak,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	s.log = logging.OrNop(s.log)
	s.history = []Message{{ID: common.MustULID(), Role: RoleAssistant, Kind: KindText, Content: Greeting}}
	return s
}

// Submit sends text with the full visible history. It returns false without
// touching anything when text is empty or another submission is pending.
func (s *Session) Submit(ctx context.Context, text string, opts SubmitOptions) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindText
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.log.Debug("submit dropped, another request is in flight")
		return false
	}
	s.inFlight = true
	s.putUserLocked(text, kind, opts)
	outbound := s.outboundLocked()
	s.mu.Unlock()
	s.changed()

	s.exchange(ctx, outbound)
	return true
}

// exchange sends outbound, records the reply or a diagnostic and releases
// the in-flight slot. The caller must hold the slot.
func (s *Session) exchange(ctx context.Context, outbound []ai.Message) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	reply, err := s.sender.Chat(cctx, outbound)
	cancel()

	s.mu.Lock()
	if err != nil {
		s.log.Warn("chat failed", zap.Error(err))
		s.appendLocked(RoleAssistant, KindText, Diagnose(err), "")
	} else {
		s.appendLocked(RoleAssistant, KindText, reply, "")
	}
	speak := err == nil && s.autoSpeak && s.speaker != nil
	s.inFlight = false
	s.mu.Unlock()
	s.changed()

	if speak {
		if err := s.speaker.Speak(ctx, reply); err != nil {
			s.log.Warn("speak reply", zap.Error(err))
		}
	}
}

func (s *Session) putUserLocked(text string, kind Kind, opts SubmitOptions) {
	if opts.SkipHistoryAppend {
		for i := len(s.history) - 1; i >= 0; i-- {
			if s.history[i].Role == RoleUser {
				s.history[i].Content = text
				if opts.AudioRef != "" {
					s.history[i].AudioRef = opts.AudioRef
				}
				return
			}
		}
	}
	s.appendLocked(RoleUser, kind, text, opts.AudioRef)
}

func (s *Session) outboundLocked() []ai.Message {
	out := make([]ai.Message, 0, len(s.history)+1)
	if s.systemPrompt != "" {
		out = append(out, ai.Message{Role: RoleSystem, Content: s.systemPrompt})
	}
	for _, m := range s.history {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func (s *Session) appendLocked(role string, kind Kind, content, audioRef string) string {
	id := common.MustULID()
	s.history = append(s.history, Message{ID: id, Role: role, Kind: kind, Content: content, AudioRef: audioRef})
	return id
}

// AudioTurn holds the in-flight slot from the moment a capture is handed
// over until its transcript has been answered or abandoned. Nothing else can
// be submitted in between, so the placeholder stays the latest user turn.
type AudioTurn struct {
	s    *Session
	id   string
	done bool
}

// BeginAudio reserves the in-flight slot and appends a placeholder user
// message. It returns false and leaves history untouched while another
// submission is pending.
func (s *Session) BeginAudio(placeholder, audioRef string) (*AudioTurn, bool) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.log.Debug("audio turn dropped, another request is in flight")
		return nil, false
	}
	s.inFlight = true
	id := s.appendLocked(RoleUser, KindAudio, placeholder, audioRef)
	s.mu.Unlock()
	s.changed()
	return &AudioTurn{s: s, id: id}, true
}

func (t *AudioTurn) ID() string { return t.id }

// Submit replaces the placeholder with text and sends the conversation.
// Empty text abandons the turn with no note.
func (t *AudioTurn) Submit(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if t.done {
		return
	}
	if text == "" {
		t.Abandon(NoSpeechText, "")
		return
	}
	t.done = true

	s := t.s
	s.mu.Lock()
	s.setContentLocked(t.id, text)
	outbound := s.outboundLocked()
	s.mu.Unlock()
	s.changed()

	s.exchange(ctx, outbound)
}

// Abandon rewrites the placeholder, appends note as an assistant message when
// it is not empty, and releases the in-flight slot without calling the model.
func (t *AudioTurn) Abandon(content, note string) {
	if t.done {
		return
	}
	t.done = true

	s := t.s
	s.mu.Lock()
	s.setContentLocked(t.id, content)
	if note != "" {
		s.appendLocked(RoleAssistant, KindText, note, "")
	}
	s.inFlight = false
	s.mu.Unlock()
	s.changed()
}

func (s *Session) setContentLocked(id, content string) {
	for i := range s.history {
		if s.history[i].ID == id {
			s.history[i].Content = content
			return
		}
	}
}

func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Session) SetAutoSpeak(on bool) {
	s.mu.Lock()
	s.autoSpeak = on
	s.mu.Unlock()
}

func (s *Session) AutoSpeak() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSpeak
}

func (s *Session) Timeout() time.Duration { return s.timeout }

// OnChange registers fn to receive a history snapshot after every change.
func (s *Session) OnChange(fn func([]Message)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) changed() {
	s.mu.Lock()
	fn := s.onChange
	var snap []Message
	if fn != nil {
		snap = append([]Message(nil), s.history...)
	}
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
