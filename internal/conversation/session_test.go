package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/gateway"
)

type recordingSender struct {
	mu      sync.Mutex
	calls   [][]ai.Message
	reply   string
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (s *recordingSender) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	s.mu.Lock()
	// copy to avoid mutations
	s.calls = append(s.calls, append([]ai.Message(nil), messages...))
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func (s *recordingSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type countingSpeaker struct {
	mu    sync.Mutex
	texts []string
}

func (s *countingSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	return nil
}

func lastTwo(h []Message) (Message, Message) {
	return h[len(h)-2], h[len(h)-1]
}

func TestSubmit_AppendsUserAndReply(t *testing.T) {
	sender := &recordingSender{reply: "Nice to meet you!"}
	s := NewSession(sender, Options{SystemPrompt: "tutor"})

	if !s.Submit(context.Background(), "  Hello  ", SubmitOptions{}) {
		t.Fatalf("expected submit to be accepted")
	}

	h := s.History()
	if len(h) != 3 {
		t.Fatalf("expected greeting + user + assistant, got %d", len(h))
	}
	if h[0].Content != Greeting {
		t.Fatalf("expected greeting first, got %q", h[0].Content)
	}
	u, a := lastTwo(h)
	if u.Role != RoleUser || u.Content != "Hello" || u.Kind != KindText {
		t.Fatalf("unexpected user message: %+v", u)
	}
	if a.Role != RoleAssistant || a.Content != "Nice to meet you!" {
		t.Fatalf("unexpected assistant message: %+v", a)
	}

	sent := sender.calls[0]
	if len(sent) != 3 || sent[0].Role != RoleSystem || sent[0].Content != "tutor" {
		t.Fatalf("expected system prefix then history, got %+v", sent)
	}
	if sent[2].Content != "Hello" {
		t.Fatalf("expected user text last, got %+v", sent[2])
	}
	for _, m := range h {
		if m.Role == RoleSystem {
			t.Fatalf("system message must not be stored")
		}
	}
}

func TestSubmit_EmptyTextIgnored(t *testing.T) {
	sender := &recordingSender{reply: "x"}
	s := NewSession(sender, Options{})
	if s.Submit(context.Background(), "   ", SubmitOptions{}) {
		t.Fatalf("empty submit must be rejected")
	}
	if sender.Calls() != 0 || len(s.History()) != 1 {
		t.Fatalf("empty submit must not touch history or network")
	}
}

func TestSubmit_SecondCallWhilePendingIsDropped(t *testing.T) {
	sender := &recordingSender{reply: "reply A", block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := NewSession(sender, Options{})

	done := make(chan bool, 1)
	go func() { done <- s.Submit(context.Background(), "A", SubmitOptions{}) }()
	<-sender.entered

	if !s.Busy() {
		t.Fatalf("expected session to be busy")
	}
	if s.Submit(context.Background(), "B", SubmitOptions{}) {
		t.Fatalf("second submit must be dropped")
	}
	close(sender.block)
	if !<-done {
		t.Fatalf("first submit should be accepted")
	}

	if sender.Calls() != 1 {
		t.Fatalf("expected exactly one outbound call, got %d", sender.Calls())
	}
	for _, m := range s.History() {
		if m.Content == "B" {
			t.Fatalf("dropped text must never be appended")
		}
	}
}

func TestSubmit_SkipHistoryAppendUpdatesPlaceholder(t *testing.T) {
	sender := &recordingSender{reply: "ok"}
	s := NewSession(sender, Options{})

	id := "placeholder-1"
	s.history = append(s.history, Message{ID: id, Role: RoleUser, Kind: KindAudio, Content: TranscribingText, AudioRef: "clip-1"})
	s.Submit(context.Background(), "I went to the park", SubmitOptions{SkipHistoryAppend: true, Kind: KindAudio})

	h := s.History()
	if len(h) != 3 {
		t.Fatalf("expected no duplicate user message, got %d messages", len(h))
	}
	if h[1].ID != id || h[1].Content != "I went to the park" || h[1].AudioRef != "clip-1" {
		t.Fatalf("placeholder not updated in place: %+v", h[1])
	}
}

func TestSubmit_SkipHistoryAppendWithoutUserMessageAppends(t *testing.T) {
	s := NewSession(&recordingSender{reply: "ok"}, Options{})
	s.Submit(context.Background(), "hi", SubmitOptions{SkipHistoryAppend: true})

	h := s.History()
	if len(h) != 3 || h[1].Role != RoleUser || h[1].Content != "hi" {
		t.Fatalf("expected user message appended, got %+v", h)
	}
}

func TestSubmit_FailureBecomesDiagnostic(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want []string
	}{
		{"forbidden", &gateway.UpstreamError{Provider: ai.TagXAI, Status: 403, Message: "no credits"}, []string{"403", "Credits", "API key", "XAI_API_KEY", "no credits"}},
		{"bad request", &gateway.UpstreamError{Provider: ai.TagGemini, Status: 400}, []string{"400", "Credits", "GEMINI_API_KEY"}},
		{"unauthorized", &gateway.UpstreamError{Provider: ai.TagGroq, Status: 401}, []string{"rejected"}},
		{"outage", &gateway.UpstreamError{Provider: ai.TagGroq, Status: 503}, []string{"try again"}},
		{"missing key", gateway.ErrMissingCredential, []string{"No API key"}},
		{"connection", &gateway.ConnectionError{Err: errors.New("refused")}, []string{"Connection error"}},
		{"timeout", &gateway.TimeoutError{Op: "chat"}, []string{"too long"}},
		{"other", errors.New("boom"), []string{"trouble connecting"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			speaker := &countingSpeaker{}
			s := NewSession(&recordingSender{err: tc.err}, Options{Speaker: speaker, AutoSpeak: true})
			s.Submit(context.Background(), "hello", SubmitOptions{})

			_, a := lastTwo(s.History())
			if a.Role != RoleAssistant {
				t.Fatalf("expected assistant diagnostic, got %+v", a)
			}
			for _, w := range tc.want {
				if !strings.Contains(a.Content, w) {
					t.Fatalf("diagnostic %q should mention %q", a.Content, w)
				}
			}
			if len(speaker.texts) != 0 {
				t.Fatalf("diagnostics are not spoken")
			}
		})
	}
}

func TestSubmit_ClientTimeout(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	s := NewSession(sender, Options{Timeout: 20 * time.Millisecond})

	s.Submit(context.Background(), "hello?", SubmitOptions{})

	_, a := lastTwo(s.History())
	if !strings.Contains(a.Content, "too long") {
		t.Fatalf("expected timeout diagnostic, got %q", a.Content)
	}
	if s.Busy() {
		t.Fatalf("in-flight flag must clear after a timeout")
	}
}

func TestSubmit_AutoSpeak(t *testing.T) {
	speaker := &countingSpeaker{}
	s := NewSession(&recordingSender{reply: "Great!"}, Options{Speaker: speaker})

	s.Submit(context.Background(), "one", SubmitOptions{})
	if len(speaker.texts) != 0 {
		t.Fatalf("auto-speak is off")
	}

	s.SetAutoSpeak(true)
	s.Submit(context.Background(), "two", SubmitOptions{})
	if len(speaker.texts) != 1 || speaker.texts[0] != "Great!" {
		t.Fatalf("expected exactly one synthesis, got %v", speaker.texts)
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	s := NewSession(&recordingSender{reply: "ok"}, Options{})
	var sizes []int
	s.OnChange(func(h []Message) { sizes = append(sizes, len(h)) })

	s.Submit(context.Background(), "hi", SubmitOptions{})
	if len(sizes) != 2 || sizes[0] != 2 || sizes[1] != 3 {
		t.Fatalf("unexpected change notifications: %v", sizes)
	}
}
