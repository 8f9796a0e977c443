package service

import (
	"context"
	"time"

	"reefcontrol/internal/models"
	"reefcontrol/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Device is the controller core's operation contract, as exposed to
// the HTTP layer. Implemented by *controller.Controller.
type Device interface {
	Connect(port string) error
	Disconnect()
	Snapshot() models.DeviceState

	SetHeaterTarget(zone string, celsius float64) error
	SetHeaterAuto(enable bool) error
	SetHeaterHysteresis(value float64) error
	SetHeaterPower(enable bool) error

	SetFanThreshold(celsius float64) error
	SetFanAuto(enable bool) error
	SetFanManual(value int) error

	ToggleLight(state *bool) error
	SetLightAuto(enable bool)
	UpdateLightSchedule(day, on, off string) error

	UpdatePumpProfile(axis string, name *string, volumeML *float64, direction *int) error
	RunDoseCycle(axis, reason string) error
	Pump(axis string, backwards bool) error
	TogglePump(state *bool) error

	SetProtectMode(enable bool)
	SetMotorAutoOff(enable bool)
	EmergencyStop() error
	SetGlobalSpeed(speed int) error
	SetSteps(steps int) error
	SetServo(angle int) error
	Dispense() error
	Raw(cmd string) error

	UpdateFeederSchedule(cfg models.FeederConfig) error
	UpdateDosingSchedule(cfg models.DosingConfig) error
	TriggerFeederNow(target, method string, stopPump bool, stopDuration int) error
}

// EventLog exposes the append-only telemetry log with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.DeviceEvent, error)
}

// LogFilter selects events by time range and kind.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Kind string    // "", or one of the models.Event* kinds
}

// Service aggregates the sub-services handed to the HTTP layer.
type Service struct {
	Device
	EventLog
	Authorization
}

// NewService wires the repository layer and the controller core into
// the composed service.
func NewService(repos *repository.Repository, device Device, signingKey string) *Service {
	return &Service{
		Device:        device,
		EventLog:      NewEventLogService(repos.Events),
		Authorization: NewAuthService(repos.Auth, signingKey),
	}
}
