package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	mu    sync.Mutex
	calls []string
}

func (h *fakeHandle) record(c string) {
	h.mu.Lock()
	h.calls = append(h.calls, c)
	h.mu.Unlock()
}

func (h *fakeHandle) StopRecognition() { h.record("stop-recognition") }
func (h *fakeHandle) StopRecorder()    { h.record("stop-recorder") }
func (h *fakeHandle) Release()         { h.record("release") }
func (h *fakeHandle) MimeType() string { return "audio/webm;codecs=opus" }

func (h *fakeHandle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type fakeSource struct {
	handle *fakeHandle
	err    error
	opened int
}

func (s *fakeSource) Open(ctx context.Context, post func(Event)) (Handle, error) {
	s.opened++
	if s.handle == nil {
		return nil, s.err
	}
	return s.handle, s.err
}

type harness struct {
	m         *Machine
	src       *fakeSource
	h         *fakeHandle
	delivered []Utterance
	errs      []Category
	states    []State
	previews  []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	hs := &harness{h: &fakeHandle{}}
	hs.src = &fakeSource{handle: hs.h}
	hs.m = New(Options{
		Source:    hs.src,
		Deliver:   func(u Utterance) { hs.delivered = append(hs.delivered, u) },
		OnState:   func(s State) { hs.states = append(hs.states, s) },
		OnPreview: func(p string) { hs.previews = append(hs.previews, p) },
		OnError:   func(c Category, _ string) { hs.errs = append(hs.errs, c) },
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return hs
}

func (hs *harness) send(evs ...Event) {
	for _, ev := range evs {
		hs.m.Handle(context.Background(), ev)
	}
}

func TestMachine_StopSequenceHandsOffOnce(t *testing.T) {
	hs := newHarness(t)

	hs.send(Toggle{})
	require.Equal(t, Recording, hs.m.State())

	hs.send(
		AudioChunk{Data: []byte("ab")},
		RecognitionResult{Results: interim("hel")},
		RecognitionResult{Results: interim("hello")},
		RecognitionResult{Results: final("hello")},
		AudioChunk{Data: []byte("cd")},
		RecognitionResult{Results: interim("hello")},
		RecognitionResult{Results: final("there")},
	)
	hs.send(Toggle{})
	assert.Equal(t, Stopping, hs.m.State())
	assert.Equal(t, []string{"stop-recognition"}, hs.h.Calls())

	hs.send(RecognitionEnded{})
	assert.Equal(t, []string{"stop-recognition", "stop-recorder"}, hs.h.Calls())

	hs.send(AudioChunk{Data: []byte("ef")}, RecorderStopped{})
	assert.Equal(t, []string{"stop-recognition", "stop-recorder", "release"}, hs.h.Calls())
	assert.Equal(t, Idle, hs.m.State())

	require.Len(t, hs.delivered, 1)
	u := hs.delivered[0]
	assert.Equal(t, "hello there", u.Transcript)
	assert.Equal(t, "abcdef", string(u.Audio))
	assert.Equal(t, "audio/webm;codecs=opus", u.MimeType)
	assert.Positive(t, u.Duration)
	assert.Equal(t, []State{Recording, Stopping, Idle}, hs.states)
	assert.Equal(t, "hello", hs.previews[len(hs.previews)-3])

	hs.send(RecorderStopped{})
	assert.Len(t, hs.delivered, 1, "late callbacks are ignored")
}

func TestMachine_RecognizerErrorKeepsRecording(t *testing.T) {
	hs := newHarness(t)
	hs.send(Toggle{}, AudioChunk{Data: []byte("x")})

	hs.send(RecognitionError{Code: "aborted"}, RecognitionError{Code: "no-speech"}, RecognitionEnded{})
	assert.Equal(t, []Category{CategoryNoSpeech}, hs.errs)
	assert.Equal(t, Recording, hs.m.State())

	// recognition already ended, so the toggle goes straight to the recorder
	hs.send(Toggle{})
	assert.Equal(t, []string{"stop-recorder"}, hs.h.Calls())

	hs.send(RecorderStopped{})
	require.Len(t, hs.delivered, 1)
	assert.Equal(t, "x", string(hs.delivered[0].Audio))
	assert.Empty(t, hs.delivered[0].Transcript)
	assert.Contains(t, hs.h.Calls(), "release")
}

func TestMachine_SecondToggleDoesNotWaitForRecognizer(t *testing.T) {
	hs := newHarness(t)
	hs.send(Toggle{}, RecognitionResult{Results: final("quick")}, Toggle{}, Toggle{})
	assert.Equal(t, []string{"stop-recognition", "stop-recorder"}, hs.h.Calls())

	hs.send(RecorderStopped{})
	require.Len(t, hs.delivered, 1)
	assert.Equal(t, "quick", hs.delivered[0].Transcript)
}

func TestMachine_RecorderEndingOnItsOwnStopsRecognition(t *testing.T) {
	hs := newHarness(t)
	hs.send(Toggle{}, AudioChunk{Data: []byte("x")}, RecorderStopped{})

	assert.Equal(t, []string{"stop-recognition", "release"}, hs.h.Calls())
	assert.Equal(t, Idle, hs.m.State())
	require.Len(t, hs.delivered, 1)
	assert.Equal(t, "x", string(hs.delivered[0].Audio))
}

func TestMachine_RecorderFailureReleasesDevice(t *testing.T) {
	hs := newHarness(t)
	hs.send(Toggle{}, RecognitionResult{Results: final("partial words")})
	hs.send(RecorderFailed{Err: errors.New("encoder crashed")})

	assert.Equal(t, []string{"stop-recognition", "release"}, hs.h.Calls())
	assert.Equal(t, Idle, hs.m.State())
	assert.Equal(t, []Category{CategoryAudioCapture}, hs.errs)
	require.Len(t, hs.delivered, 1)
	assert.Equal(t, "partial words", hs.delivered[0].Transcript)
	assert.Nil(t, hs.delivered[0].Audio)
}

func TestMachine_OpenFailureReleasesPartialHandle(t *testing.T) {
	hs := newHarness(t)
	hs.src.err = errors.New("recognizer unavailable")

	hs.send(Toggle{})
	assert.Equal(t, Idle, hs.m.State())
	assert.Equal(t, []string{"release"}, hs.h.Calls())
	assert.Equal(t, []Category{CategoryAudioCapture}, hs.errs)
	assert.Empty(t, hs.states)
}

func TestMachine_RunReleasesOnCancel(t *testing.T) {
	hs := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hs.m.Run(ctx) }()

	hs.m.Post(Toggle{})
	hs.m.Post(AudioChunk{Data: []byte("zz")})
	require.Eventually(t, func() bool { return hs.m.State() == Recording }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, Idle, hs.m.State())
	assert.Equal(t, []string{"stop-recognition", "stop-recorder", "release"}, hs.h.Calls())
	assert.Empty(t, hs.delivered)
}

func TestCategorize(t *testing.T) {
	c, ok := Categorize("service-not-allowed")
	assert.True(t, ok)
	assert.Equal(t, CategoryNotAllowed, c)

	c, ok = Categorize("bad-grammar")
	assert.True(t, ok)
	assert.Equal(t, CategoryOther, c)

	_, ok = Categorize("aborted")
	assert.False(t, ok)
}
