package handlers

import (
	"context"

	"reefcontrol/internal/models"
	"reefcontrol/internal/service"
)

// Test doubles for the composed service. Kept in a non-test file so
// every handler test in the package can share them.

type mockDevice struct {
	state models.DeviceState
	err   error // returned by every fallible operation
	calls []string
}

func (m *mockDevice) record(op string) { m.calls = append(m.calls, op) }

func (m *mockDevice) Connect(port string) error { m.record("connect " + port); return m.err }
func (m *mockDevice) Disconnect()               { m.record("disconnect") }
func (m *mockDevice) Snapshot() models.DeviceState {
	return m.state.Clone()
}

func (m *mockDevice) SetHeaterTarget(zone string, c float64) error { m.record("target"); return m.err }
func (m *mockDevice) SetHeaterAuto(bool) error                     { m.record("heaterAuto"); return m.err }
func (m *mockDevice) SetHeaterHysteresis(float64) error            { m.record("hysteresis"); return m.err }
func (m *mockDevice) SetHeaterPower(bool) error                    { m.record("heaterPower"); return m.err }

func (m *mockDevice) SetFanThreshold(float64) error { m.record("fanThreshold"); return m.err }
func (m *mockDevice) SetFanAuto(bool) error         { m.record("fanAuto"); return m.err }
func (m *mockDevice) SetFanManual(int) error        { m.record("fanManual"); return m.err }

func (m *mockDevice) ToggleLight(*bool) error                 { m.record("toggleLight"); return m.err }
func (m *mockDevice) SetLightAuto(bool)                       { m.record("lightAuto") }
func (m *mockDevice) UpdateLightSchedule(d, on, off string) error {
	m.record("lightSchedule")
	return m.err
}

func (m *mockDevice) UpdatePumpProfile(axis string, name *string, vol *float64, dir *int) error {
	m.record("pumpProfile " + axis)
	return m.err
}
func (m *mockDevice) RunDoseCycle(axis, reason string) error {
	m.record("dose " + axis + " " + reason)
	return m.err
}
func (m *mockDevice) Pump(axis string, backwards bool) error { m.record("pump " + axis); return m.err }
func (m *mockDevice) TogglePump(*bool) error                 { m.record("togglePump"); return m.err }

func (m *mockDevice) SetProtectMode(bool)       { m.record("protect") }
func (m *mockDevice) SetMotorAutoOff(bool)      { m.record("motorAutoOff") }
func (m *mockDevice) EmergencyStop() error      { m.record("stop"); return m.err }
func (m *mockDevice) SetGlobalSpeed(int) error  { m.record("speed"); return m.err }
func (m *mockDevice) SetSteps(int) error        { m.record("steps"); return m.err }
func (m *mockDevice) SetServo(int) error        { m.record("servo"); return m.err }
func (m *mockDevice) Dispense() error           { m.record("dispense"); return m.err }
func (m *mockDevice) Raw(cmd string) error      { m.record("raw " + cmd); return m.err }

func (m *mockDevice) UpdateFeederSchedule(models.FeederConfig) error {
	m.record("feederSchedule")
	return m.err
}
func (m *mockDevice) UpdateDosingSchedule(models.DosingConfig) error {
	m.record("dosingSchedule")
	return m.err
}
func (m *mockDevice) TriggerFeederNow(target, method string, stopPump bool, stopDuration int) error {
	m.record("feed " + target)
	return m.err
}

type mockEventLog struct {
	events []models.DeviceEvent
	err    error
	got    service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.DeviceEvent, error) {
	m.got = f
	return m.events, m.err
}

type mockAuth struct {
	signUpID  int
	signUpErr error
	token     string
	tokenErr  error
	userID    int
	parseErr  error
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	return m.signUpID, m.signUpErr
}

func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	return m.token, m.tokenErr
}

func (m *mockAuth) ParseToken(accessToken string) (int, error) {
	return m.userID, m.parseErr
}

var _ service.Device = (*mockDevice)(nil)
var _ service.EventLog = (*mockEventLog)(nil)
var _ service.Authorization = (*mockAuth)(nil)
