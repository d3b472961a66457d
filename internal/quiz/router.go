package quiz

import (
	"github.com/gin-gonic/gin"

	"github.com/cognitohub/platform/pkg/httpx"
)

// RegisterRoutes mounts the Async Quiz Generation Engine's HTTP surface
// of spec.md §6 onto an already-middleware-wrapped router group.
func RegisterRoutes(rg *gin.RouterGroup, o *Orchestrator, verifier httpx.TokenVerifier) {
	authed := rg.Group("/", httpx.Auth(verifier))

	// spec.md §4.D: "topic/file additionally require Teacher role."
	generate := authed.Group("/", httpx.RequireRole("Teacher", "Admin"))
	generate.POST("/generate/topic", o.GenerateTopic)
	generate.POST("/generate/file", o.GenerateFile)

	authed.GET("/generate/status/:jobId", o.Status)
	authed.GET("/generate/limits", o.Limits)

	authed.POST("/quizzes", o.CreateManual)
	authed.GET("/quizzes", o.List)
	authed.GET("/quizzes/:id", o.Get)
}
