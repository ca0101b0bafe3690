package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/httpapi/handlers"
	"github.com/suPer8Hu/speakup/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS())
	r.Use(limitBody(handlers.MaxBodyBytes))

	r.NoRoute(func(c *gin.Context) {
		if preflight(c) {
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found"}})
	})
	r.NoMethod(func(c *gin.Context) {
		if preflight(c) {
			return
		}
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": gin.H{"message": "method not allowed"}})
	})

	r.GET("/", h.Root)

	api := r.Group("/api")
	api.GET("/check-key", h.CheckKey)
	api.POST("/save-key", h.SaveKey)
	api.POST("/chat", h.Chat)
	api.POST("/transcribe", h.Transcribe)
	api.GET("/voice", h.Voice)
	return r
}

// preflight answers OPTIONS requests that carried no Origin header and so
// were not short-circuited by the CORS middleware.
func preflight(c *gin.Context) bool {
	if c.Request.Method != http.MethodOptions {
		return false
	}
	c.Status(http.StatusOK)
	return true
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
