package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/gateway"
)

type apiError struct {
	Message  string `json:"message"`
	Type     string `json:"type,omitempty"`
	Provider ai.Tag `json:"provider,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func fail(c *gin.Context, status int, e apiError) {
	c.AbortWithStatusJSON(status, gin.H{"error": e})
}

func badRequest(c *gin.Context, msg string) {
	fail(c, http.StatusBadRequest, apiError{Message: msg, Type: "bad_request"})
}

// failFrom maps the gateway error taxonomy onto HTTP.
func failFrom(c *gin.Context, err error) {
	var (
		upErr  *gateway.UpstreamError
		cfgErr *ai.ConfigurationError
		connEr *gateway.ConnectionError
		toErr  *gateway.TimeoutError
		unsErr *gateway.UnsupportedProviderError
		trErr  *gateway.TranscriptionError
	)
	_ = c.Error(err)

	switch {
	case errors.Is(err, gateway.ErrMissingCredential):
		fail(c, http.StatusUnauthorized, apiError{Message: "No API key configured. Save a key first.", Type: "missing_credential"})
	case errors.As(err, &upErr):
		status := upErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		fail(c, status, apiError{Message: upErr.Message, Type: "upstream", Provider: upErr.Provider})
	case errors.As(err, &toErr), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, apiError{Message: "upstream request timed out", Type: "timeout"})
	case errors.As(err, &connEr):
		fail(c, http.StatusInternalServerError, apiError{Message: "could not reach provider: " + connEr.Err.Error(), Type: "connection", Provider: connEr.Provider})
	case errors.As(err, &unsErr):
		fail(c, http.StatusBadRequest, apiError{
			Message:  "Voice transcription requires GROQ_API_KEY (Whisper).",
			Type:     "unsupported_provider",
			Provider: unsErr.Provider,
		})
	case errors.As(err, &trErr):
		status := http.StatusUnprocessableEntity
		if trErr.Reason == gateway.ReasonNoAudio || trErr.Reason == gateway.ReasonMalformed {
			status = http.StatusBadRequest
		}
		fail(c, status, apiError{Message: transcriptionMessage(trErr.Reason), Type: "transcription", Reason: trErr.Reason})
	case errors.As(err, &cfgErr):
		fail(c, http.StatusInternalServerError, apiError{Message: cfgErr.Error(), Type: "configuration", Provider: ai.Tag(cfgErr.Tag)})
	default:
		fail(c, http.StatusInternalServerError, apiError{Message: err.Error()})
	}
}

func transcriptionMessage(reason string) string {
	switch reason {
	case gateway.ReasonEmpty:
		return "No speech was detected in the recording."
	case gateway.ReasonNoAudio:
		return "No audio was received."
	case gateway.ReasonMalformed:
		return "The audio could not be decoded."
	default:
		return "Transcription failed."
	}
}
