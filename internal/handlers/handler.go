package handlers

import (
	"reefcontrol/internal/logger"
	"reefcontrol/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to the controller services and logging.
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

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Live state stream — same port, HTTP upgrade.
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
		h.registerDeviceRoutes(api)
		h.registerControlRoutes(api)
		h.registerScheduleRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	device := api.Group("/device")
	{
		device.POST("/connect", h.connectDevice)
		device.POST("/disconnect", h.disconnectDevice)
		device.GET("/state", h.getState)
		device.GET("/ports", h.listPorts)
		device.POST("/raw", h.rawCommand)
		device.POST("/stop", h.emergencyStop)
	}
}

func (h *Handler) registerControlRoutes(api *gin.RouterGroup) {
	heater := api.Group("/heater")
	{
		heater.POST("/target", h.setHeaterTarget)
		heater.POST("/auto", h.setHeaterAuto)
		heater.POST("/hysteresis", h.setHeaterHysteresis)
		heater.POST("/power", h.setHeaterPower)
	}
	fan := api.Group("/fan")
	{
		fan.POST("/threshold", h.setFanThreshold)
		fan.POST("/auto", h.setFanAuto)
		fan.POST("/manual", h.setFanManual)
	}
	light := api.Group("/light")
	{
		light.POST("/toggle", h.toggleLight)
		light.POST("/auto", h.setLightAuto)
	}
	pumps := api.Group("/pumps")
	{
		pumps.POST("/:axis/profile", h.updatePumpProfile)
		pumps.POST("/:axis/dose", h.runDoseCycle)
		pumps.POST("/:axis/run", h.runPump)
	}
	api.POST("/pump/toggle", h.togglePump)
	api.POST("/protect", h.setProtect)
	api.POST("/motor-auto-off", h.setMotorAutoOff)
	api.POST("/speed", h.setGlobalSpeed)
	api.POST("/steps", h.setSteps)
	api.POST("/servo", h.setServo)
	api.POST("/dispense", h.dispense)
}

func (h *Handler) registerScheduleRoutes(api *gin.RouterGroup) {
	api.POST("/light/schedule", h.updateLightSchedule)
	feeder := api.Group("/feeder")
	{
		feeder.POST("/schedule", h.updateFeederSchedule)
		feeder.POST("/trigger", h.triggerFeeder)
	}
	api.POST("/dosing/schedule", h.updateDosingSchedule)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
