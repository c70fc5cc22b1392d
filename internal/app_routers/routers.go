package approuters

import (
	"fmt"
	"net/http"
	"time"

	"Nestcare/internal/configuration"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewStatusServer builds the local status server. The caller owns its
// lifecycle.
func NewStatusServer(container *configuration.Container) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", container.Config.Server.StatusPort),
		Handler:      NewRouter(container),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func NewRouter(container *configuration.Container) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Configure CORS for a local dashboard
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:4200", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Nestcare chat client status server",
		})
	})

	StatusRouters(router, container)
	router.GET("/metrics", gin.WrapH(container.Metrics.Handler()))

	return router
}
