package approuters

import (
	"Nestcare/internal/configuration"

	"github.com/gin-gonic/gin"
)

// StatusRouters sets up the client status API routes
func StatusRouters(router *gin.Engine, container *configuration.Container) {
	statusHandler := container.StatusHandler

	statusGroup := router.Group("/api/status")
	{
		// GET /api/status - Hub session and open conversations
		statusGroup.GET("", statusHandler.GetStatus)
		// GET /api/status/conversations/:id - Visible state of one conversation
		statusGroup.GET("/conversations/:id", statusHandler.GetConversation)
	}
}
