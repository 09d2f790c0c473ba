package http

import (
	"github.com/gin-gonic/gin"

	"github.com/seclane/authgate/ports"
)

// SetupRouter sets up the Gin router.
func SetupRouter(factory AuthorityFactory, tokenizer ports.Tokenizer, dropSession func(string), upstreamKey string) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(factory, tokenizer, dropSession, upstreamKey)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/login", handlers.Login)
		auth.POST("/mfa/complete", handlers.CompleteMFA)
		auth.POST("/mfa/cancel", handlers.CancelMFA)
		auth.POST("/logout", handlers.Logout)
		auth.GET("/resume", handlers.Resume)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(ResumeGuard(factory, tokenizer))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	return router
}
