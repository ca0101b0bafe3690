// Package speech reads assistant replies aloud through an OpenAI-compatible
// text-to-speech endpoint.
package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultModel = "tts-1"
	DefaultSpeed = 0.92
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Voice      string
	Speed      float64
	HTTPClient *http.Client
}

type OpenAISpeaker struct {
	client *openai.Client
	model  string
	voice  string
	speed  float64
	player Player
	log    *zap.Logger
}

func NewOpenAISpeaker(cfg Config, player Player, log *zap.Logger) (*OpenAISpeaker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("speech: api key is required")
	}
	if player == nil {
		return nil, errors.New("speech: player is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceNova)
	}
	if cfg.Speed <= 0 {
		cfg.Speed = DefaultSpeed
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAISpeaker{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		voice:  cfg.Voice,
		speed:  cfg.Speed,
		player: player,
		log:    log,
	}, nil
}

// SetVoice switches the voice used for the next reply.
func (s *OpenAISpeaker) SetVoice(voice string) {
	if voice != "" {
		s.voice = voice
	}
}

// Speak synthesizes text and blocks until the player is done with it.
func (s *OpenAISpeaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	start := time.Now()
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          s.speed,
	})
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	defer resp.Close()

	if err := s.player.Play(ctx, resp); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}
	s.log.Debug("reply spoken",
		zap.String("voice", s.voice),
		zap.Int("chars", len(text)),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}
