package handlers

import (
	"spectrum_bridge/internal/logger"
	"spectrum_bridge/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Websocket spectrum stream — same port as the control API.
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerSweepRoutes(api)
		h.registerSpectrumRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerSweepRoutes(api *gin.RouterGroup) {
	sweep := api.Group("/sweep")
	{
		sweep.POST("/start", h.startSweep)
		sweep.POST("/stop", h.stopSweep)
		// Body example: {"start_mhz":1990,"end_mhz":6000}
		sweep.POST("/range", h.setRange)
		sweep.POST("/request-config", h.requestConfig)
		sweep.POST("/reset", h.resetAggregates)
	}
}

func (h *Handler) registerSpectrumRoutes(api *gin.RouterGroup) {
	api.GET("/spectrum", h.getSpectrum)
	api.GET("/status", h.getStatus)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
