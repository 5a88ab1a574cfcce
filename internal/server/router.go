package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"clipsync-server/internal/clip"
	"clipsync-server/internal/handler"
	"clipsync-server/internal/middleware"
	"clipsync-server/internal/token"
)

type Deps struct {
	Registry     *clip.Registry
	Signer       *token.Signer
	MaxFileBytes int64
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	sessionHandler := &handler.SessionHandler{Registry: deps.Registry, Signer: deps.Signer}
	createLimiter := middleware.NewRateLimiter(30, time.Minute)

	r.POST("/v1/sessions", middleware.RateLimitMiddleware(createLimiter), sessionHandler.Create)
	r.GET("/v1/sessions/:id", sessionHandler.Info)
	r.POST("/v1/sessions/:id/items/file", sessionHandler.UploadFile)
	r.GET("/v1/sessions/:id/items/:itemID/download", sessionHandler.Download)

	wsHandler := &handler.WebSocketHandler{Registry: deps.Registry, MaxFileBytes: deps.MaxFileBytes}
	r.GET("/v1/ws", wsHandler.Serve)

	return r
}
