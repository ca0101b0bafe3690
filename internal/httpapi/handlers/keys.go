package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/ai"
)

var endpoints = []string{"/api/check-key", "/api/save-key", "/api/chat", "/api/transcribe", "/api/voice"}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "SpeakUp API", "endpoints": endpoints})
}

func (h *Handler) CheckKey(c *gin.Context) {
	cred, err := h.Creds.Get(c.Request.Context())
	if err != nil {
		h.Log.Error("read credential", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"hasKey": false})
		return
	}
	if cred == nil {
		c.JSON(http.StatusOK, gin.H{"hasKey": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasKey": true, "provider": cred.Provider})
}

type saveKeyReq struct {
	APIKey   *string `json:"apiKey"`
	Provider string  `json:"provider"`
}

func (h *Handler) SaveKey(c *gin.Context) {
	var req saveKeyReq
	if !bindJSON(c, &req) {
		return
	}
	if req.APIKey == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "API key is required"})
		return
	}
	key := strings.TrimSpace(*req.APIKey)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "API key cannot be empty"})
		return
	}

	provider := ai.TagGemini
	if strings.TrimSpace(req.Provider) != "" {
		tag, err := ai.ParseTag(req.Provider)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		provider = tag
	}

	if err := h.Creds.Set(c.Request.Context(), key, provider); err != nil {
		h.Log.Error("save credential", zap.String("provider", string(provider)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not save the key"})
		return
	}
	h.Log.Info("credential saved", zap.String("provider", string(provider)))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "API key saved", "provider": provider})
}
