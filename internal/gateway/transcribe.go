package gateway

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/logging"
)

const (
	DefaultMimeType       = "audio/webm"
	transcriptionLanguage = "en"
)

// transcriber is implemented by adapters that expose speech-to-text.
type transcriber interface {
	TranscriptionModel() string
}

type TranscriptionGateway struct {
	creds    CredentialSource
	registry *ai.Registry
	client   *http.Client
	log      *zap.Logger
}

func NewTranscriptionGateway(creds CredentialSource, registry *ai.Registry, opts Options) *TranscriptionGateway {
	g := &TranscriptionGateway{creds: creds, registry: registry, client: opts.Client, log: opts.Logger}
	if g.client == nil {
		g.client = &http.Client{Timeout: DefaultUpstreamTimeout}
	}
	g.log = logging.OrNop(g.log)
	return g
}

func (g *TranscriptionGateway) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	cred, err := g.creds.Get(ctx)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", ErrMissingCredential
	}
	adapter, err := g.registry.Resolve(cred.Provider)
	if err != nil {
		return "", err
	}
	if !adapter.SupportsTranscription() {
		return "", &UnsupportedProviderError{Provider: cred.Provider}
	}
	if len(audio) == 0 {
		return "", &TranscriptionError{Reason: ReasonNoAudio}
	}

	model := ai.GroqTranscriptionModel
	if t, ok := adapter.(transcriber); ok {
		model = t.TranscriptionModel()
	}

	cfg := openai.DefaultConfig(cred.Secret)
	cfg.BaseURL = adapter.BaseURL()
	cfg.HTTPClient = g.client
	client := openai.NewClientWithConfig(cfg)

	mt := NormalizeMimeType(mimeType)
	start := time.Now()
	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		Reader:   bytes.NewReader(audio),
		FilePath: "audio" + extensionFor(mt),
		Language: transcriptionLanguage,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", g.mapError(ctx, cred.Provider, err)
	}

	text := strings.TrimSpace(resp.Text)
	g.log.Info("transcription completed",
		zap.String("provider", string(cred.Provider)),
		zap.String("audio", humanize.Bytes(uint64(len(audio)))),
		zap.String("mime", mt),
		zap.Int("chars", len(text)),
		zap.Duration("latency", time.Since(start)),
	)
	if text == "" {
		return "", &TranscriptionError{Reason: ReasonEmpty}
	}
	return text, nil
}

func (g *TranscriptionGateway) mapError(ctx context.Context, provider ai.Tag, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.HTTPStatusCode)
		}
		return &UpstreamError{Provider: provider, Status: apiErr.HTTPStatusCode, Message: msg}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := upstreamMessage(reqErr.Body, reqErr.HTTPStatusCode)
		if len(reqErr.Body) == 0 && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &UpstreamError{Provider: provider, Status: reqErr.HTTPStatusCode, Message: msg}
	}
	return transportError(ctx, provider, "transcription", g.client.Timeout, err)
}

// NormalizeMimeType drops parameters such as codecs and lowercases the rest.
func NormalizeMimeType(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return DefaultMimeType
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	mt = strings.ToLower(mt)
	if mt == "" {
		return DefaultMimeType
	}
	return mt
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/flac":
		return ".flac"
	default:
		return ".webm"
	}
}
