package app

import (
	"context"
	"net/http"
	"time"

	"github.com/like-Ocean/TODOs/internal/handlers"
	"github.com/like-Ocean/TODOs/internal/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag"
)

// Setup registers all routes on the given engine.
func Setup(r *gin.Engine, a *App) {
	r.GET("/", rootHandler(a))
	r.GET("/health", healthHandler(a))
	r.GET("/version", versionHandler(a))
	r.GET("/metrics", gin.WrapH(metrics.Handler(a.metrics)))
	r.GET("/swagger-doc.json", swaggerDocHandler())
	r.GET("/swagger", func(c *gin.Context) { c.Redirect(http.StatusFound, "/swagger/index.html") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(
		swaggerFiles.Handler,
		ginSwagger.URL("/swagger-doc.json"),
		ginSwagger.DefaultModelsExpandDepth(-1),
	))

	api := r.Group("/api")
	registerTaskRoutes(api, handlers.NewTaskHandler(a.tasks))
	registerGeneratorRoutes(api, handlers.NewGeneratorHandler(a.importer))
	registerRealtimeRoutes(api, handlers.NewRealtimeHandler(a.registry))
}

func rootHandler(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":   "TODOs API",
			"version":   a.cfg.App.Version,
			"env":       a.cfg.App.Env,
			"docs":      "/swagger/index.html",
			"spec":      "/swagger-doc.json",
			"health":    "/health",
			"api":       "/api",
			"websocket": "/api/ws/tasks",
		})
	}
}

func healthHandler(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"postgres": "ok", "redis": "ok"}
		ok := true
		if err := a.db.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			ok = false
		}
		if err := a.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			ok = false
		}

		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ok":          ok,
			"env":         a.cfg.App.Env,
			"checks":      checks,
			"connections": a.registry.Count(),
			"importer":    a.importer.IsRunning(),
		})
	}
}

func versionHandler(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": a.cfg.App.Version})
	}
}

func swaggerDocHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := swag.ReadDoc("swagger")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	}
}

func registerTaskRoutes(api *gin.RouterGroup, h *handlers.TaskHandler) {
	api.GET("/task/tasks", h.List)
	api.POST("/task/tasks", h.Create)
	api.GET("/task/tasks/:id", h.GetByID)
	api.PATCH("/task/tasks/:id", h.Update)
	api.DELETE("/task/tasks/:id", h.Delete)
}

func registerGeneratorRoutes(api *gin.RouterGroup, h *handlers.GeneratorHandler) {
	api.POST("/task-generator/run", h.Run)
	api.POST("/task-generator/start", h.Start)
	api.POST("/task-generator/stop", h.Stop)
	api.GET("/task-generator/status", h.Status)
}

func registerRealtimeRoutes(api *gin.RouterGroup, h *handlers.RealtimeHandler) {
	api.GET("/ws/tasks", h.Tasks)
}
