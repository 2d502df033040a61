package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/service"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	postService service.PostService,
	publishService service.PublishService,
	syncService service.SyncService,
	metricsHandler http.Handler,
) {
	postHandler := NewPostHandler(postService, publishService, syncService)
	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	protected := router.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		posts := protected.Group("/posts")
		{
			posts.POST("", postHandler.CreatePost)
			posts.GET("", postHandler.ListPosts)
			posts.GET("/:id", postHandler.GetPost)
			posts.POST("/:id/files", postHandler.AttachFile)
			posts.GET("/:id/files/:fileId/preview", postHandler.PreviewFile)
			posts.POST("/:id/sync", postHandler.Sync)
			posts.POST("/:id/publish", RoleMiddleware(domain.RolePublisher), postHandler.Publish)
		}
		protected.POST("/remote-posts/:postId/open", postHandler.OpenRemote)
	}
}
