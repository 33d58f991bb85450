package http

import (
	"github.com/gin-gonic/gin"
	"github.com/gpufleet/fleet/internal/api/http/handler"
	"github.com/gpufleet/fleet/internal/api/http/middleware"
)

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	dispatchHandler := handler.NewDispatchHandler(srvs.Registry, srvs.Commands, srvs.Telemetry)
	agentsHandler := handler.NewAgentsHandler(srvs.Registry, srvs.Telemetry)
	commandsHandler := handler.NewCommandsHandler(srvs.Commands, srvs.Registry)
	telemetryHandler := handler.NewTelemetryHandler(srvs.Telemetry)
	authHandler := handler.NewAuthHandler(srvs.Users, srvs.JWT)

	engine.POST("/auth/register", authHandler.Register)
	engine.POST("/auth/login", authHandler.Login)

	api := engine.Group("/api/v1")

	// Agent dispatch protocol. Register needs no credential; the status
	// poll is a coordinator-side read agents use to notice stop requests.
	api.POST("/register", dispatchHandler.Register)
	api.GET("/commands/:id/status", dispatchHandler.CommandStatus)

	agentAPI := api.Group("", middleware.AgentAuth(srvs.Registry))
	agentAPI.POST("/telemetry", dispatchHandler.SubmitTelemetry)
	agentAPI.GET("/commands/next", dispatchHandler.FetchNextCommand)
	agentAPI.POST("/commands/report", dispatchHandler.ReportOutput)

	// Operator surface.
	operatorAPI := api.Group("", middleware.JWTAuth(srvs.JWT.Secret))
	operatorAPI.GET("/agents", agentsHandler.ListAgents)
	operatorAPI.GET("/agents/:id", agentsHandler.GetAgent)
	operatorAPI.DELETE("/agents/:id", agentsHandler.DeleteAgent)
	operatorAPI.GET("/agents/:id/commands", commandsHandler.ListByAgent)
	operatorAPI.GET("/agents/:id/telemetry", telemetryHandler.Range)
	operatorAPI.POST("/commands", commandsHandler.Enqueue)
	operatorAPI.GET("/commands/:id", commandsHandler.GetCommand)
	operatorAPI.POST("/commands/:id/stop", commandsHandler.RequestStop)
}
