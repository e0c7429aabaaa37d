package http

import (
	"github.com/gin-gonic/gin"

	"github.com/questland/heimdall/ports"
	"github.com/questland/heimdall/service"
)

// SetupRouter sets up the Gin router.
func SetupRouter(auth *service.AuthService, confirm *service.ConfirmService, markers ports.MarkerStore) *gin.Engine {
	router := gin.Default()

	handlers := NewHandlers(auth, confirm, markers)

	authGroup := router.Group("/auth")
	{
		authGroup.GET("/nonce/:identity", handlers.Nonce)
		authGroup.POST("/sign-up", handlers.SignUp)
		authGroup.POST("/sign-in", handlers.SignIn)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(auth))
	{
		api.GET("/me", handlers.Me)
		api.POST("/confirmations", handlers.RegisterConfirmation)
		api.GET("/purchases/:resource/pending", handlers.PendingPurchase)
	}

	return router
}
