package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/config"
	"github.com/suPer8Hu/speakup/internal/credential"
	"github.com/suPer8Hu/speakup/internal/gateway"
	"github.com/suPer8Hu/speakup/internal/httpapi"
	"github.com/suPer8Hu/speakup/internal/httpapi/handlers"
	"github.com/suPer8Hu/speakup/internal/logging"
)

func envFile() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return "speakup.env"
}

func main() {
	if err := config.LoadFile(envFile()); err != nil {
		panic(err)
	}
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Credential store
	var backend credential.Backend
	switch cfg.CredentialsBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("redis ping", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		backend = credential.NewRedisBackend(rdb, cfg.RedisCredentialsKey)
	default:
		backend = credential.NewFileBackend(cfg.CredentialsFile)
	}
	creds := credential.NewStore(backend)

	reg := ai.DefaultRegistry(ai.Endpoints{
		Groq:   cfg.GroqBaseURL,
		Gemini: cfg.GeminiBaseURL,
		XAI:    cfg.XAIBaseURL,
	})
	if err := reg.Validate(); err != nil {
		log.Fatal("provider registry", zap.Error(err))
	}

	opts := gateway.Options{
		Client:       &http.Client{Timeout: cfg.UpstreamTimeout},
		Logger:       log,
		SystemPrompt: cfg.SystemPrompt,
		MaxTokens:    cfg.ChatMaxTokens,
	}
	h := handlers.NewHandler(creds, gateway.NewChatGateway(creds, reg, opts), gateway.NewTranscriptionGateway(creds, reg, opts), log)
	h.SystemPrompt = cfg.SystemPrompt
	h.SessionTimeout = cfg.ClientTimeout

	gin.SetMode(cfg.GinMode)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(h, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("credentials", cfg.CredentialsBackend),
			zap.Strings("providers", tagNames(reg.Tags())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

func tagNames(tags []ai.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}
