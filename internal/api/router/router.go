package router

import (
	"github.com/cuongbtq/bot-runner/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	botHandler := handler.NewBotHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		bots := v1.Group("/bots")
		{
			bots.POST("", botHandler.CreateBot)
			bots.GET("", botHandler.ListBots)
			bots.GET("/by-name/:name", botHandler.GetBotByName)
			bots.GET("/:bot_id", botHandler.GetBot)
			bots.PUT("/:bot_id", botHandler.UpdateBot)
			bots.DELETE("/:bot_id", botHandler.DeleteBot)
		}

		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create and dispatch a job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/enqueue - Retry dispatch of a PENDING job
			jobs.POST("/:job_id/enqueue", jobHandler.EnqueueJob)

			// GET /api/v1/jobs/:job_id/logs - Page through job logs
			jobs.GET("/:job_id/logs", jobHandler.ListJobLogs)

			// GET /api/v1/jobs/:job_id/logs/stream - Tail job logs over a websocket
			jobs.GET("/:job_id/logs/stream", jobHandler.StreamJobLogs)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a job
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)

			// DELETE /api/v1/jobs/:job_id - Delete a finished job
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)
		}
	}

	return r
}
