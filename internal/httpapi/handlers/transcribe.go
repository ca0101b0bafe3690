package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/speakup/internal/gateway"
)

type transcribeReq struct {
	AudioBase64 string `json:"audioBase64"`
	MimeType    string `json:"mimeType"`
}

func (h *Handler) Transcribe(c *gin.Context) {
	var req transcribeReq
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.AudioBase64) == "" {
		badRequest(c, "audioBase64 is required")
		return
	}
	audio, err := decodeAudio(req.AudioBase64)
	if err != nil {
		failFrom(c, &gateway.TranscriptionError{Reason: gateway.ReasonMalformed, Err: err})
		return
	}

	text, err := h.STT.Transcribe(c.Request.Context(), audio, req.MimeType)
	if err != nil {
		failFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// decodeAudio accepts plain base64 as well as a data: URL.
func decodeAudio(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return b, nil
}
