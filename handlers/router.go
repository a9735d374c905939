package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter は webhook とヘルスチェックのルートを登録する
func SetupRouter(b *Bridge) *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/api/webhooks/github", b.HandleGitHubWebhook())

	return r
}
