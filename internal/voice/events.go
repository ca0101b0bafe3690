package voice

import (
	"context"
	"time"
)

// Event is anything a capture device reports back to the machine.
type Event interface {
	event()
}

// Toggle starts a capture when idle and stops it otherwise.
type Toggle struct{}

type AudioChunk struct {
	Data []byte
}

type Result struct {
	Text  string
	Final bool
}

type RecognitionResult struct {
	Results []Result
}

type RecognitionError struct {
	Code string
}

type RecognitionEnded struct{}

type RecorderStopped struct{}

type RecorderFailed struct {
	Err error
}

func (Toggle) event()            {}
func (AudioChunk) event()        {}
func (RecognitionResult) event() {}
func (RecognitionError) event()  {}
func (RecognitionEnded) event()  {}
func (RecorderStopped) event()   {}
func (RecorderFailed) event()    {}

// Source acquires the microphone and starts both the recorder and the
// recognizer. Every callback must go through post.
type Source interface {
	Open(ctx context.Context, post func(Event)) (Handle, error)
}

// Handle is the exclusively owned device of one capture.
type Handle interface {
	StopRecognition()
	StopRecorder()
	Release()
	MimeType() string
}

// Utterance is what a finished capture hands off.
type Utterance struct {
	Transcript string
	Audio      []byte
	MimeType   string
	StartedAt  time.Time
	Duration   time.Duration
}
