package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/gateway"
)

type providerHelp struct {
	name    string
	console string
	keys    string
	envVar  string
}

var help = map[ai.Tag]providerHelp{
	ai.TagGroq:   {name: "Groq", console: "https://console.groq.com", keys: "https://console.groq.com/keys", envVar: "GROQ_API_KEY"},
	ai.TagGemini: {name: "Google Gemini", console: "https://aistudio.google.com", keys: "https://aistudio.google.com/apikey", envVar: "GEMINI_API_KEY"},
	ai.TagXAI:    {name: "xAI", console: "https://console.x.ai", keys: "https://console.x.ai/team/default/api-keys", envVar: "XAI_API_KEY"},
}

// Diagnose turns any chat or transcription failure into text for the transcript.
func Diagnose(err error) string {
	var (
		upErr   *gateway.UpstreamError
		connErr *gateway.ConnectionError
		toErr   *gateway.TimeoutError
		unsErr  *gateway.UnsupportedProviderError
		trErr   *gateway.TranscriptionError
		cfgErr  *ai.ConfigurationError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gateway.ErrMissingCredential):
		return "No API key is configured on the server yet. Save a Groq, Gemini or xAI key and try again."
	case errors.As(err, &upErr):
		return upstreamDiagnostic(upErr)
	case errors.As(err, &toErr), errors.Is(err, context.DeadlineExceeded):
		return "The request took too long and was cancelled. Please try again."
	case errors.As(err, &connErr):
		return "Connection error. Is the backend running? Check the backend URL in settings."
	case errors.As(err, &unsErr):
		return fmt.Sprintf("Voice transcription needs a Groq key. The active provider (%s) only handles text, so please type your message instead.", unsErr.Provider)
	case errors.As(err, &trErr):
		switch trErr.Reason {
		case gateway.ReasonNoAudio:
			return "No audio was recorded. Check the microphone and try again."
		case gateway.ReasonMalformed:
			return "The recording could not be processed. Please try again."
		default:
			return "I couldn't hear anything in that recording. Could you say it again?"
		}
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("The server is configured with an unsupported provider (%s).", cfgErr.Tag)
	default:
		return "Sorry, I had trouble connecting. Could you try saying that again?"
	}
}

func upstreamDiagnostic(e *gateway.UpstreamError) string {
	h, known := help[e.Provider]
	name := h.name
	if !known {
		name = "the provider"
	}

	switch {
	case e.NeedsAccountCheck():
		var b strings.Builder
		fmt.Fprintf(&b, "⚠️ Error %d from %s (API key or account)\n\n", e.Status, name)
		if e.Message != "" {
			fmt.Fprintf(&b, "Detail: %s\n\n", e.Message)
		}
		b.WriteString("Check:\n")
		if known {
			fmt.Fprintf(&b, "1. Sign in at %s\n", h.console)
			b.WriteString("2. Credits: the API is paid, make sure the account has credits loaded\n")
			fmt.Fprintf(&b, "3. Create or verify your API key at %s\n", h.keys)
			fmt.Fprintf(&b, "4. The server environment variable %s must match that key", h.envVar)
		} else {
			b.WriteString("1. Credits: paid APIs need credits loaded on the account\n")
			b.WriteString("2. Create or verify your API key in the provider console\n")
			b.WriteString("3. The server environment variable for the provider must match that key")
		}
		return b.String()
	case e.Status == http.StatusUnauthorized:
		return fmt.Sprintf("The API key was rejected by %s (401). Save a valid key and try again.", name)
	case e.Status == http.StatusTooManyRequests:
		return "The provider is rate limiting requests right now. Wait a moment and try again."
	case e.IsTransient():
		return fmt.Sprintf("%s is having trouble right now (status %d). Please try again in a moment.", capitalize(name), e.Status)
	default:
		if e.Message != "" {
			return fmt.Sprintf("Error %d: %s", e.Status, e.Message)
		}
		return fmt.Sprintf("Error %d. Check your API key.", e.Status)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
