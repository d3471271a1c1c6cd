// Package obshttp exposes the broker's observability surface over HTTP:
// /healthz for liveness and /snapshot for a point-in-time view of
// connected validators, pending actions, and subscriber lag.
package obshttp

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/cyw0ng95/sentinel/pkg/broker"
)

// NewRouter builds the introspection router over b.
func NewRouter(b *broker.Broker) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr
	gin.DefaultErrorWriter = os.Stderr

	router := gin.New()
	router.Use(gin.RecoveryWithWriter(os.Stderr))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/snapshot", func(c *gin.Context) {
		c.JSON(http.StatusOK, b.SnapshotState())
	})

	return router
}
