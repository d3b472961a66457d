package notification

import (
	"github.com/gin-gonic/gin"

	"github.com/cognitohub/platform/pkg/httpx"
)

// RegisterRoutes mounts the notification history routes of spec.md §6.
func RegisterRoutes(rg *gin.RouterGroup, s *Service, verifier httpx.TokenVerifier) {
	authed := rg.Group("/", httpx.Auth(verifier))

	authed.GET("/notifications", s.List)
	authed.GET("/notifications/unread-count", s.UnreadCount)
	authed.PUT("/notifications/:id/read", s.MarkRead)
	authed.PUT("/notifications/read-all", s.MarkAllRead)

	// Service-to-service event ingress, spec.md §6.
	authed.POST("/events/achievement-unlocked", s.Events("achievement-unlocked"))
	authed.POST("/events/level-up", s.Events("level-up"))
	authed.POST("/events/streak-milestone", s.Events("streak-milestone"))
}
