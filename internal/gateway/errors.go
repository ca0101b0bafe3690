package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/speakup/internal/ai"
)

// ErrMissingCredential means no provider key is configured anywhere.
var ErrMissingCredential = errors.New("gateway: no provider credential configured")

// UpstreamError is a non-2xx answer from the provider. Status is preserved so
// callers can tell a bad key or missing credits from a transient outage.
type UpstreamError struct {
	Provider ai.Tag
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("gateway [%s]: upstream status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway: upstream status %d: %s", e.Status, e.Message)
}

func (e *UpstreamError) IsClientError() bool {
	return e.Status == 400 || e.Status == 401 || e.Status == 403
}

// NeedsAccountCheck covers the statuses paid providers return for a bad key or no credits.
func (e *UpstreamError) NeedsAccountCheck() bool {
	return e.Status == 400 || e.Status == 403
}

func (e *UpstreamError) IsTransient() bool {
	return e.Status >= 500 && e.Status < 600
}

// ConnectionError means no response reached us.
type ConnectionError struct {
	Provider ai.Tag
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("gateway [%s]: connection failed: %v", e.Provider, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Budget > 0 {
		return fmt.Sprintf("gateway: %s timed out after %s", e.Op, e.Budget)
	}
	return fmt.Sprintf("gateway: %s timed out", e.Op)
}

type UnsupportedProviderError struct {
	Provider ai.Tag
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("gateway: provider %q does not support transcription", e.Provider)
}

const (
	ReasonEmpty     = "empty"
	ReasonNoAudio   = "no-audio"
	ReasonMalformed = "malformed"
)

type TranscriptionError struct {
	Reason string
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: transcription %s: %v", e.Reason, e.Err)
	}
	return "gateway: transcription " + e.Reason
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
