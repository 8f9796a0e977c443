package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reefcontrol/internal/controller"
	"reefcontrol/internal/models"
	"reefcontrol/internal/serialio"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusConnected    = "connected"
	statusDisconnected = "disconnected"

	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// deviceError maps controller errors onto HTTP status codes:
// validation and interlock refusals are the caller's fault, a missing
// link is a conflict, a device-side failure is a bad gateway.
func (h *Handler) deviceError(c *gin.Context, logKey string, err error) {
	var (
		vErr  *controller.ValidationError
		sErr  *controller.SafetyInterlockError
		cmdE  *controller.CommandError
		connE *controller.ConnectionError
	)
	switch {
	case errors.As(err, &vErr), errors.As(err, &sErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, controller.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &cmdE), errors.As(err, &connE):
		h.logAndJSONError(c, http.StatusBadGateway, err.Error(), logKey, err)
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, err.Error(), logKey, err)
	}
}

// Respond with a status and include the current state snapshot.
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	resp["state"] = h.services.Device.Snapshot()
	c.JSON(http.StatusOK, resp)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

type connectRequest struct {
	Port string `json:"port"`
}

// @Summary      Connect to the board
// @Description  Opens the serial port and runs the handshake. Empty port picks the first candidate.
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body   connectRequest  false  "Port to open"
// @Success      200   {object}  map[string]interface{}  "status, state"
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/device/connect [post]
// @Security     BearerAuth
func (h *Handler) connectDevice(c *gin.Context) {
	var req connectRequest
	// Body is optional here.
	_ = c.ShouldBindJSON(&req)

	if err := h.services.Device.Connect(req.Port); err != nil {
		h.deviceError(c, "device_connect_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusConnected, gin.H{})
}

// @Summary      Disconnect from the board
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/disconnect [post]
// @Security     BearerAuth
func (h *Handler) disconnectDevice(c *gin.Context) {
	h.services.Device.Disconnect()
	h.respondWithStatusAndState(c, statusDisconnected, gin.H{})
}

// @Summary      Get device state
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.DeviceState
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Device.Snapshot())
}

// @Summary      List candidate serial ports
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/ports [get]
// @Security     BearerAuth
func (h *Handler) listPorts(c *gin.Context) {
	ports := serialio.ListPorts()
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

type rawRequest struct {
	Command string `json:"command" binding:"required"`
}

// @Summary      Send a raw command line
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body   rawRequest  true  "Raw command"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/device/raw [post]
// @Security     BearerAuth
func (h *Handler) rawCommand(c *gin.Context) {
	var req rawRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.Raw(req.Command); err != nil {
		h.deviceError(c, "device_raw_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Emergency stop
// @Description  Cancels pending motor-off timers and powers all steppers down.
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/device/stop [post]
// @Security     BearerAuth
func (h *Handler) emergencyStop(c *gin.Context) {
	if err := h.services.Device.EmergencyStop(); err != nil {
		h.deviceError(c, "device_stop_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type heaterTargetRequest struct {
	Zone    string  `json:"zone" binding:"required"` // water | reserve
	Celsius float64 `json:"celsius"`
}

func (h *Handler) setHeaterTarget(c *gin.Context) {
	var req heaterTargetRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetHeaterTarget(req.Zone, req.Celsius); err != nil {
		h.deviceError(c, "heater_target_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{"zone": req.Zone})
}

type enableRequest struct {
	Enable bool `json:"enable"`
}

func (h *Handler) setHeaterAuto(c *gin.Context) {
	var req enableRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetHeaterAuto(req.Enable); err != nil {
		h.deviceError(c, "heater_auto_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type hysteresisRequest struct {
	Value float64 `json:"value" binding:"required"`
}

func (h *Handler) setHeaterHysteresis(c *gin.Context) {
	var req hysteresisRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetHeaterHysteresis(req.Value); err != nil {
		h.deviceError(c, "heater_hysteresis_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

func (h *Handler) setHeaterPower(c *gin.Context) {
	var req enableRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetHeaterPower(req.Enable); err != nil {
		h.deviceError(c, "heater_power_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type thresholdRequest struct {
	Celsius float64 `json:"celsius" binding:"required"`
}

func (h *Handler) setFanThreshold(c *gin.Context) {
	var req thresholdRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetFanThreshold(req.Celsius); err != nil {
		h.deviceError(c, "fan_threshold_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

func (h *Handler) setFanAuto(c *gin.Context) {
	var req enableRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetFanAuto(req.Enable); err != nil {
		h.deviceError(c, "fan_auto_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type fanManualRequest struct {
	Value int `json:"value"` // 0..255 PWM
}

func (h *Handler) setFanManual(c *gin.Context) {
	var req fanManualRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetFanManual(req.Value); err != nil {
		h.deviceError(c, "fan_manual_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type toggleRequest struct {
	State *bool `json:"state"` // omitted means flip
}

func (h *Handler) toggleLight(c *gin.Context) {
	var req toggleRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.services.Device.ToggleLight(req.State); err != nil {
		h.deviceError(c, "light_toggle_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

func (h *Handler) setLightAuto(c *gin.Context) {
	var req enableRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	h.services.Device.SetLightAuto(req.Enable)
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type lightScheduleRequest struct {
	Day string `json:"day" binding:"required"`
	On  string `json:"on"`
	Off string `json:"off"`
}

func (h *Handler) updateLightSchedule(c *gin.Context) {
	var req lightScheduleRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.UpdateLightSchedule(req.Day, req.On, req.Off); err != nil {
		h.deviceError(c, "light_schedule_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{"day": req.Day})
}

type pumpProfileRequest struct {
	Name      *string  `json:"name"`
	VolumeML  *float64 `json:"volume_ml"`
	Direction *int     `json:"direction"` // +1 forward, -1 reverse
}

func (h *Handler) updatePumpProfile(c *gin.Context) {
	axis := c.Param("axis")
	var req pumpProfileRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.UpdatePumpProfile(axis, req.Name, req.VolumeML, req.Direction); err != nil {
		h.deviceError(c, "pump_profile_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{"axis": axis})
}

// @Summary      Run one dose cycle
// @Description  Dispenses the configured volume on the given channel now, outside the schedule.
// @Tags         pumps
// @Produce      json
// @Param        axis  path  string  true  "Pump axis (X, Y, Z, E)"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/pumps/{axis}/dose [post]
// @Security     BearerAuth
func (h *Handler) runDoseCycle(c *gin.Context) {
	axis := c.Param("axis")
	if err := h.services.Device.RunDoseCycle(axis, "manual"); err != nil {
		h.deviceError(c, "dose_cycle_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{"axis": axis})
}

type pumpRunRequest struct {
	Backwards bool `json:"backwards"`
}

func (h *Handler) runPump(c *gin.Context) {
	axis := c.Param("axis")
	var req pumpRunRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.services.Device.Pump(axis, req.Backwards); err != nil {
		h.deviceError(c, "pump_run_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{"axis": axis})
}

func (h *Handler) togglePump(c *gin.Context) {
	var req toggleRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.services.Device.TogglePump(req.State); err != nil {
		h.deviceError(c, "pump_toggle_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

func (h *Handler) setProtect(c *gin.Context) {
	var req enableRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	h.services.Device.SetProtectMode(req.Enable)
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

func (h *Handler) setMotorAutoOff(c *gin.Context) {
	var req enableRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	h.services.Device.SetMotorAutoOff(req.Enable)
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type speedRequest struct {
	Speed int `json:"speed" binding:"required"`
}

func (h *Handler) setGlobalSpeed(c *gin.Context) {
	var req speedRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetGlobalSpeed(req.Speed); err != nil {
		h.deviceError(c, "speed_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type stepsRequest struct {
	Steps int `json:"steps" binding:"required"`
}

func (h *Handler) setSteps(c *gin.Context) {
	var req stepsRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetSteps(req.Steps); err != nil {
		h.deviceError(c, "steps_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type servoRequest struct {
	Angle int `json:"angle"`
}

func (h *Handler) setServo(c *gin.Context) {
	var req servoRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.SetServo(req.Angle); err != nil {
		h.deviceError(c, "servo_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

func (h *Handler) dispense(c *gin.Context) {
	if err := h.services.Device.Dispense(); err != nil {
		h.deviceError(c, "dispense_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

func (h *Handler) updateFeederSchedule(c *gin.Context) {
	var cfg models.FeederConfig
	if ok := h.bindJSONOrBadRequest(c, &cfg); !ok {
		return
	}
	if err := h.services.Device.UpdateFeederSchedule(cfg); err != nil {
		h.deviceError(c, "feeder_schedule_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

type feederTriggerRequest struct {
	Target       string `json:"target" binding:"required"`
	Method       string `json:"method"`
	StopPump     bool   `json:"stop_pump"`
	StopDuration int    `json:"stop_duration"` // minutes, required when stop_pump
}

// @Summary      Trigger a feeding now
// @Tags         feeder
// @Accept       json
// @Produce      json
// @Param        body  body   feederTriggerRequest  true  "Feeding payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/feeder/trigger [post]
// @Security     BearerAuth
func (h *Handler) triggerFeeder(c *gin.Context) {
	var req feederTriggerRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.Device.TriggerFeederNow(req.Target, req.Method, req.StopPump, req.StopDuration); err != nil {
		h.deviceError(c, "feeder_trigger_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{"target": req.Target})
}

func (h *Handler) updateDosingSchedule(c *gin.Context) {
	var cfg models.DosingConfig
	if ok := h.bindJSONOrBadRequest(c, &cfg); !ok {
		return
	}
	if err := h.services.Device.UpdateDosingSchedule(cfg); err != nil {
		h.deviceError(c, "dosing_schedule_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}
