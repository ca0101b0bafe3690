package conversation

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/common"
	"github.com/suPer8Hu/speakup/internal/gateway"
	"github.com/suPer8Hu/speakup/internal/logging"
	"github.com/suPer8Hu/speakup/internal/voice"
)

const (
	TranscribingText = "Transcribing…"
	NoSpeechText     = "(no speech detected)"
)

// Pipeline turns finished voice captures into submissions. The server
// transcript is authoritative; the live recognizer text is only a fallback.
type Pipeline struct {
	session     *Session
	transcriber Transcriber
	log         *zap.Logger
}

func NewPipeline(session *Session, transcriber Transcriber, log *zap.Logger) *Pipeline {
	return &Pipeline{session: session, transcriber: transcriber, log: logging.OrNop(log)}
}

// Deliver reports false when the capture was dropped because another
// submission is still pending. The in-flight slot is held from the
// placeholder through transcription to the reply.
func (p *Pipeline) Deliver(ctx context.Context, u voice.Utterance) bool {
	turn, ok := p.session.BeginAudio(TranscribingText, "clip-"+common.MustULID())
	if !ok {
		p.log.Info("voice capture dropped, a reply is still pending")
		return false
	}

	var transcribeErr error
	text := ""
	if len(u.Audio) > 0 && p.transcriber != nil {
		cctx, cancel := context.WithTimeout(ctx, p.session.Timeout())
		text, transcribeErr = p.transcriber.Transcribe(cctx, u.Audio, u.MimeType)
		cancel()
		text = strings.TrimSpace(text)
		if transcribeErr != nil {
			p.log.Info("server transcription failed, using live transcript",
				zap.Error(transcribeErr),
				zap.String("audio", humanize.Bytes(uint64(len(u.Audio)))),
			)
		}
	}
	if text == "" {
		text = strings.TrimSpace(u.Transcript)
	}

	if text == "" {
		if transcribeErr == nil {
			transcribeErr = &gateway.TranscriptionError{Reason: gateway.ReasonEmpty}
		}
		turn.Abandon(NoSpeechText, Diagnose(transcribeErr))
		return true
	}

	turn.Submit(ctx, text)
	return true
}
