// Package voice runs the capture state machine: one recording gesture drives a
// recorder and a live recognizer side by side and ends in a single Utterance.
package voice

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type State int32

const (
	Idle State = iota
	Recording
	// Stopping means a stop was requested and the device is draining.
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type Options struct {
	Source Source
	// Deliver runs on the event loop goroutine and must not block.
	Deliver   func(Utterance)
	OnState   func(State)
	OnPreview func(string)
	OnError   func(Category, string)
	Logger    *zap.Logger
	Now       func() time.Time
}

// Machine owns at most one capture at a time. Handle must only be called
// from a single goroutine, normally Run.
type Machine struct {
	opts  Options
	log   *zap.Logger
	state atomic.Int32
	cur   *capture

	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
}

// capture lives from Toggle-to-start until the device is released.
type capture struct {
	handle           Handle
	transcript       Transcript
	chunks           [][]byte
	startedAt        time.Time
	recognitionEnded bool
	recognitionStop  bool
	recorderStopping bool
	pending          *string
}

func (c *capture) audio() []byte {
	if len(c.chunks) == 0 {
		return nil
	}
	return bytes.Join(c.chunks, nil)
}

func New(opts Options) *Machine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{opts: opts, log: log, notify: make(chan struct{}, 1)}
}

func (m *Machine) State() State { return State(m.state.Load()) }

// Post enqueues an event. Safe from any goroutine and never blocks.
func (m *Machine) Post(ev Event) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Machine) drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

// Run consumes posted events in order until ctx is done. An active capture
// is torn down and its device released on the way out.
func (m *Machine) Run(ctx context.Context) error {
	for {
		for _, ev := range m.drain() {
			m.Handle(ctx, ev)
		}
		select {
		case <-ctx.Done():
			m.abort()
			return ctx.Err()
		case <-m.notify:
		}
	}
}

func (m *Machine) Handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case Toggle:
		m.toggle(ctx)
	case AudioChunk:
		if m.cur != nil && len(e.Data) > 0 {
			m.cur.chunks = append(m.cur.chunks, bytes.Clone(e.Data))
		}
	case RecognitionResult:
		if m.cur == nil {
			return
		}
		m.cur.transcript.Apply(e.Results)
		if m.opts.OnPreview != nil {
			m.opts.OnPreview(m.cur.transcript.Preview())
		}
	case RecognitionError:
		cat, ok := Categorize(e.Code)
		if !ok {
			return
		}
		m.log.Debug("recognizer error", zap.String("code", e.Code), zap.String("category", string(cat)))
		m.reportError(cat, cat.Message())
	case RecognitionEnded:
		if m.cur == nil {
			return
		}
		m.cur.recognitionEnded = true
		if m.State() == Stopping {
			m.stopRecorder()
		}
	case RecorderStopped:
		if m.cur == nil {
			return
		}
		// the recorder may end on its own while still recording
		m.stopRecognition()
		m.finish()
	case RecorderFailed:
		if m.cur == nil {
			return
		}
		m.log.Warn("recorder failed", zap.Error(e.Err))
		msg := "Recording failed."
		if e.Err != nil {
			msg = "Recording failed: " + e.Err.Error()
		}
		m.reportError(CategoryAudioCapture, msg)
		m.stopRecognition()
		m.finish()
	}
}

func (m *Machine) toggle(ctx context.Context) {
	switch m.State() {
	case Idle:
		m.start(ctx)
	case Recording:
		m.setState(Stopping)
		if m.cur.recognitionEnded {
			m.stopRecorder()
			return
		}
		m.stopRecognition()
	case Stopping:
		// a second stop does not wait for the recognizer
		m.stopRecorder()
	}
}

func (m *Machine) start(ctx context.Context) {
	if m.opts.Source == nil {
		m.reportError(CategoryAudioCapture, "No capture device configured.")
		return
	}
	h, err := m.opts.Source.Open(ctx, m.Post)
	if err != nil {
		if h != nil {
			h.Release()
		}
		m.log.Warn("open capture device", zap.Error(err))
		m.reportError(CategoryAudioCapture, "Could not access the microphone: "+err.Error())
		return
	}
	m.cur = &capture{handle: h, startedAt: m.opts.Now()}
	m.setState(Recording)
}

// stopRecognition asks the recognizer to stop at most once per capture.
func (m *Machine) stopRecognition() {
	c := m.cur
	if c.recognitionEnded || c.recognitionStop {
		return
	}
	c.recognitionStop = true
	c.handle.StopRecognition()
}

// stopRecorder snapshots the committed transcript into the pending slot
// before asking the recorder to flush.
func (m *Machine) stopRecorder() {
	c := m.cur
	if c.recorderStopping {
		return
	}
	c.recorderStopping = true
	if c.pending == nil {
		p := c.transcript.Committed()
		c.pending = &p
	}
	c.handle.StopRecorder()
}

func (m *Machine) finish() {
	c := m.cur
	m.cur = nil
	c.handle.Release()

	transcript := c.transcript.Committed()
	if c.pending != nil {
		transcript = *c.pending
	}
	u := Utterance{
		Transcript: transcript,
		Audio:      c.audio(),
		MimeType:   c.handle.MimeType(),
		StartedAt:  c.startedAt,
		Duration:   m.opts.Now().Sub(c.startedAt),
	}
	m.setState(Idle)
	m.log.Debug("capture finished",
		zap.Int("audio_bytes", len(u.Audio)),
		zap.Int("transcript_chars", len(u.Transcript)),
		zap.Duration("duration", u.Duration),
	)
	if m.opts.Deliver != nil && (len(u.Audio) > 0 || u.Transcript != "") {
		m.opts.Deliver(u)
	}
}

func (m *Machine) abort() {
	c := m.cur
	if c == nil {
		return
	}
	m.stopRecognition()
	m.cur = nil
	if !c.recorderStopping {
		c.handle.StopRecorder()
	}
	c.handle.Release()
	m.setState(Idle)
}

func (m *Machine) setState(s State) {
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	if m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}

func (m *Machine) reportError(c Category, msg string) {
	if m.opts.OnError != nil {
		m.opts.OnError(c, msg)
	}
}
