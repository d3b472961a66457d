package social

import (
	"github.com/gin-gonic/gin"

	"github.com/cognitohub/platform/pkg/httpx"
)

// RegisterRoutes mounts the Social Fanout & Notification Plane's post,
// comment, like and follow routes of spec.md §6.
func RegisterRoutes(rg *gin.RouterGroup, s *Service, verifier httpx.TokenVerifier) {
	authed := rg.Group("/", httpx.Auth(verifier))

	authed.POST("/posts/create", s.Create)
	authed.GET("/posts/feed/:userId", s.Feed)
	authed.GET("/posts/trending/posts", s.Trending)
	authed.POST("/posts/:id/like", s.Like)
	authed.DELETE("/posts/:id/like", s.Unlike)
	authed.POST("/posts/:id/comments", s.CreateComment)

	authed.POST("/follows/follow", s.Follow)
	authed.DELETE("/follows/follow", s.Unfollow)
	authed.GET("/follows/stats/:userId", s.FollowStats)
	authed.GET("/follows/check/:followerId/:followingId", s.CheckFollow)
}
