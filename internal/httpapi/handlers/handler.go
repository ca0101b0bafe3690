package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/credential"
	"github.com/suPer8Hu/speakup/internal/gateway"
	"github.com/suPer8Hu/speakup/internal/logging"
)

type CredentialStore interface {
	Get(ctx context.Context) (*credential.Credential, error)
	Set(ctx context.Context, secret string, tag ai.Tag) error
}

type ChatService interface {
	Send(ctx context.Context, req ai.ChatRequest) (*gateway.Reply, error)
	Chat(ctx context.Context, messages []ai.Message) (string, error)
}

type TranscriptionService interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Handler struct {
	Creds        CredentialStore
	ChatSvc      ChatService
	STT          TranscriptionService
	Log          *zap.Logger
	SystemPrompt string
	// SessionTimeout bounds each call made by a websocket voice session.
	SessionTimeout time.Duration
}

func NewHandler(creds CredentialStore, chat ChatService, stt TranscriptionService, log *zap.Logger) *Handler {
	return &Handler{Creds: creds, ChatSvc: chat, STT: stt, Log: logging.OrNop(log)}
}
