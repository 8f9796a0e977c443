package controller

import (
	"errors"
	"testing"
	"time"

	"reefcontrol/internal/models"
)

func TestConnect_AppliesHandshakeStatus(t *testing.T) {
	c, rig := newTestController(t)
	rig.autoOK(c)
	rig.tr.status = "STATUS;mtr=1;fan_val=128;servo=45"

	if err := c.Connect("/dev/ttyACM0"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	st := c.Snapshot()
	if !st.Connected || st.Port != "/dev/ttyACM0" {
		t.Fatalf("connection state wrong: %+v", st)
	}
	if !st.MotorsPowered || st.Fan.Value != 128 || st.ServoAngle != 45 {
		t.Fatalf("handshake status not applied: %+v", st)
	}
	evs := rig.events.ofKind(models.EventConnect)
	if len(evs) != 1 || evs[0].Next != "connected" {
		t.Fatalf("connect event missing: %+v", evs)
	}
}

func TestConnect_Validation(t *testing.T) {
	c, rig := newTestController(t)

	var vErr *ValidationError
	if err := c.Connect("  "); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for blank port, got %v", err)
	}

	rig.tr.openErr = errors.New("ENOENT")
	var connErr *ConnectionError
	if err := c.Connect("/dev/ttyACM9"); !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if c.Snapshot().Connected {
		t.Fatalf("failed connect left state connected")
	}
}

func TestDisconnect(t *testing.T) {
	c, rig := newTestController(t)
	rig.autoOK(c)
	if err := c.Connect("/dev/ttyACM0"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c.Disconnect()

	if rig.tr.Connected() || c.Snapshot().Connected {
		t.Fatalf("disconnect did not close the link")
	}
}

func TestSetHeaterTarget(t *testing.T) {
	c, rig := newTestController(t)

	var vErr *ValidationError
	if err := c.SetHeaterTarget("basement", 25); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown zone, got %v", err)
	}
	if err := c.SetHeaterTarget("water", 41); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for out-of-range target, got %v", err)
	}

	if err := c.SetHeaterTarget("Water", 26.5); err != nil {
		t.Fatalf("SetHeaterTarget: %v", err)
	}
	if got := c.Snapshot().Heater.Targets["water"]; got != 26.5 {
		t.Fatalf("target not stored: %v", got)
	}
	if rig.settings.saves["heat"] == 0 {
		t.Fatalf("heater config not persisted")
	}
}

func TestSetHeaterHysteresis(t *testing.T) {
	c, _ := newTestController(t)

	var vErr *ValidationError
	if err := c.SetHeaterHysteresis(0); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for zero hysteresis")
	}
	if err := c.SetHeaterHysteresis(6); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for oversized hysteresis")
	}
	if err := c.SetHeaterHysteresis(0.5); err != nil {
		t.Fatalf("SetHeaterHysteresis: %v", err)
	}
	if got := c.Snapshot().Heater.Hysteresis; got != 0.5 {
		t.Fatalf("hysteresis not stored: %v", got)
	}
}

func TestSetHeaterPower_RefusedInAutoMode(t *testing.T) {
	c, _ := newTestController(t)

	var vErr *ValidationError
	if err := c.SetHeaterPower(false); !errors.As(err, &vErr) {
		t.Fatalf("expected refusal to force heaters off in auto mode, got %v", err)
	}

	if err := c.SetHeaterAuto(false); err != nil {
		t.Fatalf("SetHeaterAuto: %v", err)
	}
	if err := c.SetHeaterPower(false); err != nil {
		t.Fatalf("SetHeaterPower in manual mode: %v", err)
	}
	st := c.Snapshot()
	if st.Heater.Enabled || st.Heater.State["water"] || st.Heater.State["reserve"] {
		t.Fatalf("zones not forced off: %+v", st.Heater)
	}
}

func TestSetFanManual(t *testing.T) {
	c, rig := newTestController(t)

	var vErr *ValidationError
	if err := c.SetFanManual(300); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for PWM out of range")
	}

	if err := c.SetFanManual(180); err != nil {
		t.Fatalf("SetFanManual: %v", err)
	}
	st := c.Snapshot()
	if st.Fan.Auto || st.Fan.Value != 180 || !st.Fan.On {
		t.Fatalf("manual fan state wrong: %+v", st.Fan)
	}
	if !rig.fan.On() {
		t.Fatalf("fan relay not driven")
	}
}

func TestSetFanThreshold_PushesCommandsWhileConnected(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	rig.autoOK(c)

	if err := c.SetFanThreshold(29.5); err != nil {
		t.Fatalf("SetFanThreshold: %v", err)
	}
	lines := rig.tr.lines()
	if len(lines) != 2 || lines[0] != "AUTOCOOL 29.50" || lines[1] != "FAN -1" {
		t.Fatalf("unexpected wire traffic: %v", lines)
	}
	st := c.Snapshot()
	if !st.Fan.Auto || st.Fan.Threshold != 29.5 {
		t.Fatalf("threshold state wrong: %+v", st.Fan)
	}
}

func TestToggleLight(t *testing.T) {
	c, rig := newTestController(t)

	if err := c.ToggleLight(nil); err != nil {
		t.Fatalf("ToggleLight: %v", err)
	}
	if !c.Snapshot().Light.On || !rig.light.On() {
		t.Fatalf("flip did not turn the light on")
	}

	force := false
	if err := c.ToggleLight(&force); err != nil {
		t.Fatalf("ToggleLight forced: %v", err)
	}
	if c.Snapshot().Light.On {
		t.Fatalf("forced off not applied")
	}
}

func TestUpdateLightSchedule(t *testing.T) {
	c, rig := newTestController(t)

	var vErr *ValidationError
	if err := c.UpdateLightSchedule("funday", "08:00", "20:00"); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown day")
	}
	if err := c.UpdateLightSchedule("monday", "25:00", ""); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for bad time")
	}

	// Empty strings keep the stored half of the window.
	if err := c.UpdateLightSchedule("monday", "", "22:30"); err != nil {
		t.Fatalf("UpdateLightSchedule: %v", err)
	}
	w := c.Snapshot().Light.Schedule["monday"]
	if w.On != "08:00" || w.Off != "22:30" {
		t.Fatalf("window patch wrong: %+v", w)
	}
	if rig.settings.saves["light"] != 1 {
		t.Fatalf("schedule not persisted")
	}
}

func TestUpdatePumpProfile(t *testing.T) {
	c, rig := newTestController(t)

	var vErr *ValidationError
	if err := c.UpdatePumpProfile("Q", nil, nil, nil); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown axis")
	}
	vol := -1.0
	if err := c.UpdatePumpProfile("X", nil, &vol, nil); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for non-positive volume")
	}
	dir := 2
	if err := c.UpdatePumpProfile("X", nil, nil, &dir); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for bad direction")
	}

	name := "calcium"
	vol = 12.5
	if err := c.UpdatePumpProfile("x", &name, &vol, nil); err != nil {
		t.Fatalf("UpdatePumpProfile: %v", err)
	}
	p := c.Snapshot().Pumps["X"]
	if p.Name != "calcium" || p.VolumeML != 12.5 || p.Direction != 1 {
		t.Fatalf("patch semantics wrong: %+v", p)
	}
	if rig.settings.saves["pumps"] != 1 {
		t.Fatalf("profiles not persisted")
	}
}

func TestSettingsWritesAreDetachedFromState(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	rig.autoOK(c)

	name := "alkalinity"
	if err := c.UpdatePumpProfile("X", &name, nil, nil); err != nil {
		t.Fatalf("UpdatePumpProfile: %v", err)
	}
	if err := c.UpdateLightSchedule("monday", "09:00", ""); err != nil {
		t.Fatalf("UpdateLightSchedule: %v", err)
	}
	if err := c.RunDoseCycle("X", ""); err != nil {
		t.Fatalf("RunDoseCycle: %v", err)
	}
	savedPumps := rig.settings.pumps
	savedLight := rig.settings.light
	savedDose := rig.settings.lastDose

	// The store keeps changing after the documents were written; maps
	// already handed to the settings store must not follow it.
	c.st.mutate(func(st *models.DeviceState) {
		st.Pumps["X"] = models.DoseProfile{Name: "overwritten", VolumeML: 1, Direction: 1}
		st.Light.Schedule["monday"] = models.DayWindow{On: "00:00", Off: "00:01"}
		st.LastDose["X"] = time.Time{}
	})

	if savedPumps["X"].Name != "alkalinity" {
		t.Fatalf("saved pump profiles alias the live map: %+v", savedPumps["X"])
	}
	if savedLight["monday"].On != "09:00" {
		t.Fatalf("saved light schedule aliases the live map: %+v", savedLight["monday"])
	}
	if savedDose["X"].IsZero() {
		t.Fatalf("saved last-dose map aliases the live map")
	}
}

func TestRunDoseCycle(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	rig.autoOK(c)
	c.st.mutate(func(st *models.DeviceState) {
		st.Pumps["Y"] = models.DoseProfile{Name: "mag", VolumeML: 5, Direction: -1}
	})

	if err := c.RunDoseCycle("y", ""); err != nil {
		t.Fatalf("RunDoseCycle: %v", err)
	}

	lines := rig.tr.lines()
	if len(lines) != 1 || lines[0] != "PUMP Y -500 300" {
		t.Fatalf("unexpected dose command: %v", lines)
	}
	if c.Snapshot().LastDose["Y"].IsZero() {
		t.Fatalf("last dose not recorded")
	}
	evs := rig.events.ofKind(models.EventDose)
	if len(evs) != 1 || evs[0].Cause != "manual" {
		t.Fatalf("dose event wrong: %+v", evs)
	}
}

func TestRunDose_InterlockBlocksBeforeAnyWrite(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	c.SetProtectMode(true)
	c.HandleLine("LEVEL low=1 high=0 alert=0")
	c.st.mutate(func(st *models.DeviceState) {
		st.Pumps["X"] = models.DoseProfile{VolumeML: 10, Direction: 1}
	})

	err := c.RunDoseCycle("X", "manual")
	var lockErr *SafetyInterlockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected SafetyInterlockError, got %v", err)
	}
	if got := rig.tr.lines(); len(got) != 0 {
		t.Fatalf("interlock allowed wire traffic: %v", got)
	}
	if len(rig.events.ofKind(models.EventDose)) != 0 {
		t.Fatalf("dose event recorded despite interlock")
	}
}

func TestPump_UsesGlobalStepsAndSpeedFloor(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	rig.autoOK(c)
	if err := c.SetGlobalSpeed(10); err != nil { // below the floor
		t.Fatalf("SetGlobalSpeed: %v", err)
	}
	if err := c.SetSteps(800); err != nil {
		t.Fatalf("SetSteps: %v", err)
	}

	if err := c.Pump("z", true); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	lines := rig.tr.lines()
	if len(lines) != 1 || lines[0] != "PUMP Z -800 50" {
		t.Fatalf("unexpected pump command: %v", lines)
	}
}

func TestDoseJob_SchedulesAutoMotorOff(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	rig.autoOK(c)
	c.SetMotorAutoOff(true)
	c.st.mutate(func(st *models.DeviceState) {
		st.Pumps["X"] = models.DoseProfile{VolumeML: 1, Direction: 1}
	})

	if err := c.RunDoseCycle("X", "manual"); err != nil {
		t.Fatalf("RunDoseCycle: %v", err)
	}
	if c.PendingDelayed() != 1 {
		t.Fatalf("auto motor-off not scheduled")
	}
}

func TestEmergencyStop(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	rig.autoOK(c)
	c.delays.Schedule("motor-off", time.Hour, func() {})

	if err := c.EmergencyStop(); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}
	if c.PendingDelayed() != 0 {
		t.Fatalf("pending motor-off survived the emergency stop")
	}
	lines := rig.tr.lines()
	if len(lines) != 1 || lines[0] != "MTR OFF" {
		t.Fatalf("unexpected wire traffic: %v", lines)
	}
	if len(rig.events.ofKind(models.EventEmergency)) != 1 {
		t.Fatalf("emergency event missing")
	}
}

func TestTogglePump(t *testing.T) {
	c, rig := newTestController(t)

	if err := c.TogglePump(nil); err != nil {
		t.Fatalf("TogglePump: %v", err)
	}
	if !c.Snapshot().PumpOn || !rig.pump.On() {
		t.Fatalf("pump not started")
	}
	evs := rig.events.ofKind(models.EventPump)
	if len(evs) != 1 {
		t.Fatalf("pump event missing")
	}

	// Forcing the current state records nothing new.
	on := true
	if err := c.TogglePump(&on); err != nil {
		t.Fatalf("TogglePump forced: %v", err)
	}
	if len(rig.events.ofKind(models.EventPump)) != 1 {
		t.Fatalf("no-op toggle recorded an event")
	}
}

func TestSetServo(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	rig.autoOK(c)

	var vErr *ValidationError
	if err := c.SetServo(181); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for angle out of range")
	}
	if err := c.SetServo(45); err != nil {
		t.Fatalf("SetServo: %v", err)
	}
	if c.Snapshot().ServoAngle != 45 {
		t.Fatalf("servo angle not stored")
	}
}

func TestRaw(t *testing.T) {
	c, rig := newTestController(t)
	rig.tr.connected = true
	rig.autoOK(c)

	var vErr *ValidationError
	if err := c.Raw("   "); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty command")
	}
	if err := c.Raw("M119"); err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if got := rig.tr.lines(); len(got) != 1 || got[0] != "M119" {
		t.Fatalf("unexpected wire traffic: %v", got)
	}
}

func TestUpdateFeederSchedule_Validation(t *testing.T) {
	c, _ := newTestController(t)

	var vErr *ValidationError
	bad := models.FeederConfig{Entries: []models.FeedEntry{{Time: "8am", Target: "main"}}}
	if err := c.UpdateFeederSchedule(bad); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for bad time")
	}

	bad = models.FeederConfig{Entries: []models.FeedEntry{{Time: "08:00", Target: "main", StopPump: true}}}
	if err := c.UpdateFeederSchedule(bad); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for stop_pump without duration")
	}

	good := models.FeederConfig{
		Auto:    true,
		Entries: []models.FeedEntry{{Time: "08:00", Target: "main", StopPump: true, StopDuration: 5}},
	}
	if err := c.UpdateFeederSchedule(good); err != nil {
		t.Fatalf("UpdateFeederSchedule: %v", err)
	}
	if len(c.Snapshot().Feeder.Entries) != 1 {
		t.Fatalf("schedule not stored")
	}
}

func TestUpdateDosingSchedule_NormalizesAxes(t *testing.T) {
	c, _ := newTestController(t)

	var vErr *ValidationError
	if err := c.UpdateDosingSchedule(models.DosingConfig{
		Times: map[string]string{"Q": "10:00"},
	}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown axis")
	}
	if err := c.UpdateDosingSchedule(models.DosingConfig{
		Times: map[string]string{"X": "10:75"},
	}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for bad time")
	}

	if err := c.UpdateDosingSchedule(models.DosingConfig{
		Auto:  true,
		Times: map[string]string{" x ": "10:00"},
	}); err != nil {
		t.Fatalf("UpdateDosingSchedule: %v", err)
	}
	if got := c.Snapshot().Dosing.Times["X"]; got != "10:00" {
		t.Fatalf("axis key not normalized: %v", c.Snapshot().Dosing.Times)
	}
}

func TestTriggerFeederNow(t *testing.T) {
	c, rig := newTestController(t)

	var vErr *ValidationError
	if err := c.TriggerFeederNow("", "servo", false, 0); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty target")
	}
	if err := c.TriggerFeederNow("main", "servo", true, 0); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for stop_pump without duration")
	}

	if err := c.TriggerFeederNow("main", "servo", false, 0); err != nil {
		t.Fatalf("TriggerFeederNow: %v", err)
	}
	waitFor(t, func() bool { return len(rig.feeder.feedCalls()) == 1 })
}
