package conversation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/credential"
	"github.com/suPer8Hu/speakup/internal/gateway"
	"github.com/suPer8Hu/speakup/internal/voice"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return s.text, s.err
}

func TestDeliver_GroqEndToEnd(t *testing.T) {
	var chats atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/audio/transcriptions":
			_, _ = io.WriteString(w, `{"text":"Hello"}`)
		case "/chat/completions":
			chats.Add(1)
			_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Hi there!"}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := credential.NewStore(nil, credential.WithEnv(func(k string) string {
		if k == "GROQ_API_KEY" {
			return "gk"
		}
		return ""
	}))
	reg := ai.DefaultRegistry(ai.Endpoints{Groq: srv.URL})
	chat := gateway.NewChatGateway(store, reg, gateway.Options{})
	stt := gateway.NewTranscriptionGateway(store, reg, gateway.Options{})

	speaker := &countingSpeaker{}
	s := NewSession(chat, Options{SystemPrompt: "tutor", Speaker: speaker, AutoSpeak: true})
	NewPipeline(s, stt, nil).Deliver(context.Background(), voice.Utterance{
		Transcript: "hello",
		Audio:      []byte("webm-bytes"),
		MimeType:   "audio/webm;codecs=opus",
	})

	h := s.History()
	u, a := lastTwo(h)
	if u.Role != RoleUser || u.Content != "Hello" || u.Kind != KindAudio || u.AudioRef == "" {
		t.Fatalf("unexpected user message: %+v", u)
	}
	if a.Role != RoleAssistant || a.Content != "Hi there!" {
		t.Fatalf("unexpected assistant message: %+v", a)
	}
	if len(h) != 3 {
		t.Fatalf("placeholder must be reused, got %d messages", len(h))
	}
	if chats.Load() != 1 {
		t.Fatalf("expected one chat call, got %d", chats.Load())
	}
	if len(speaker.texts) != 1 || speaker.texts[0] != "Hi there!" {
		t.Fatalf("expected synthesis exactly once, got %v", speaker.texts)
	}
}

func TestDeliver_FallsBackToLiveTranscript(t *testing.T) {
	sender := &recordingSender{reply: "ok"}
	s := NewSession(sender, Options{})
	p := NewPipeline(s, stubTranscriber{err: &gateway.UnsupportedProviderError{Provider: ai.TagGemini}}, nil)

	p.Deliver(context.Background(), voice.Utterance{Transcript: "good morning", Audio: []byte("a")})

	u, _ := lastTwo(s.History())
	if u.Content != "good morning" {
		t.Fatalf("expected live transcript, got %q", u.Content)
	}
	if sender.Calls() != 1 {
		t.Fatalf("expected one submission")
	}
}

func TestDeliver_NothingUsable(t *testing.T) {
	sender := &recordingSender{reply: "never"}
	s := NewSession(sender, Options{})
	p := NewPipeline(s, stubTranscriber{err: &gateway.TranscriptionError{Reason: gateway.ReasonEmpty}}, nil)

	p.Deliver(context.Background(), voice.Utterance{Audio: []byte("silence")})

	u, a := lastTwo(s.History())
	if u.Content != NoSpeechText {
		t.Fatalf("expected placeholder to read %q, got %q", NoSpeechText, u.Content)
	}
	if a.Role != RoleAssistant || !strings.Contains(a.Content, "couldn't hear") {
		t.Fatalf("expected diagnostic, got %+v", a)
	}
	if sender.Calls() != 0 {
		t.Fatalf("nothing should be submitted")
	}
}

func TestDeliver_NoAudioUsesTranscriptWithoutServer(t *testing.T) {
	called := false
	tr := transcriberFunc(func(context.Context, []byte, string) (string, error) {
		called = true
		return "", errors.New("unexpected")
	})
	s := NewSession(&recordingSender{reply: "ok"}, Options{})
	NewPipeline(s, tr, nil).Deliver(context.Background(), voice.Utterance{Transcript: "just text"})

	if called {
		t.Fatalf("transcriber must not run without audio")
	}
	u, _ := lastTwo(s.History())
	if u.Content != "just text" {
		t.Fatalf("unexpected user content %q", u.Content)
	}
}

type transcriberFunc func(context.Context, []byte, string) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f(ctx, audio, mimeType)
}

func TestDeliver_DroppedWhileSubmitPending(t *testing.T) {
	sender := &recordingSender{reply: "reply to A", block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := NewSession(sender, Options{})
	p := NewPipeline(s, stubTranscriber{text: "B audio"}, nil)

	done := make(chan bool, 1)
	go func() { done <- s.Submit(context.Background(), "A", SubmitOptions{}) }()
	<-sender.entered

	if p.Deliver(context.Background(), voice.Utterance{Audio: []byte("x")}) {
		t.Fatalf("capture must be dropped while a reply is pending")
	}
	close(sender.block)
	<-done

	h := s.History()
	if len(h) != 3 {
		t.Fatalf("expected greeting, A, reply; got %+v", h)
	}
	u, a := lastTwo(h)
	if u.Content != "A" || a.Content != "reply to A" {
		t.Fatalf("history interleaved: %+v", h)
	}
	if sender.Calls() != 1 {
		t.Fatalf("expected one outbound call, got %d", sender.Calls())
	}
}

func TestDeliver_HoldsSessionDuringTranscription(t *testing.T) {
	sender := &recordingSender{reply: "ok"}
	s := NewSession(sender, Options{})
	entered := make(chan struct{})
	release := make(chan struct{})
	tr := transcriberFunc(func(context.Context, []byte, string) (string, error) {
		close(entered)
		<-release
		return "voice words", nil
	})

	done := make(chan bool, 1)
	go func() { done <- NewPipeline(s, tr, nil).Deliver(context.Background(), voice.Utterance{Audio: []byte("x")}) }()
	<-entered

	if s.Submit(context.Background(), "typed", SubmitOptions{}) {
		t.Fatalf("typed text must be dropped while a capture is transcribing")
	}
	close(release)
	if !<-done {
		t.Fatalf("capture should be accepted")
	}

	h := s.History()
	if len(h) != 3 {
		t.Fatalf("expected greeting, voice, reply; got %+v", h)
	}
	u, a := lastTwo(h)
	if u.Role != RoleUser || u.Kind != KindAudio || u.Content != "voice words" {
		t.Fatalf("unexpected user message: %+v", u)
	}
	if a.Role != RoleAssistant || a.Content != "ok" {
		t.Fatalf("unexpected reply: %+v", a)
	}
	for _, m := range h {
		if m.Content == "typed" {
			t.Fatalf("dropped text must never be appended")
		}
	}
	if s.Busy() {
		t.Fatalf("in-flight slot must be released")
	}
}

func TestDeliver_NothingUsableReleasesSession(t *testing.T) {
	s := NewSession(&recordingSender{reply: "ok"}, Options{})
	NewPipeline(s, nil, nil).Deliver(context.Background(), voice.Utterance{})

	if s.Busy() {
		t.Fatalf("abandoned capture must release the session")
	}
	if !s.Submit(context.Background(), "next", SubmitOptions{}) {
		t.Fatalf("session should accept the next submission")
	}
}
