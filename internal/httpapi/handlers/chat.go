package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/common"
)

// MaxBodyBytes fits a few minutes of base64 encoded opus audio.
const MaxBodyBytes = 25 << 20

type chatReq struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []ai.Message `json:"messages"`
}

type chatChoice struct {
	Index   int        `json:"index"`
	Message ai.Message `json:"message"`
}

type chatResp struct {
	ID       string       `json:"id,omitempty"`
	Provider ai.Tag       `json:"provider"`
	Model    string       `json:"model"`
	Choices  []chatChoice `json:"choices"`
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatReq
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Messages) == 0 {
		badRequest(c, "messages are required")
		return
	}

	reply, err := h.ChatSvc.Send(c.Request.Context(), ai.ChatRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  req.Messages,
	})
	if err != nil {
		failFrom(c, err)
		return
	}

	c.JSON(http.StatusOK, chatResp{
		ID:       "chat-" + common.MustULID(),
		Provider: reply.Provider,
		Model:    reply.Model,
		Choices: []chatChoice{{
			Index:   0,
			Message: ai.Message{Role: "assistant", Content: reply.Content},
		}},
	})
}

func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		fail(c, http.StatusRequestEntityTooLarge, apiError{Message: "request body too large", Type: "bad_request"})
		return false
	}
	badRequest(c, "invalid json")
	return false
}
