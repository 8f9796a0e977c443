package controller

import (
	"context"
	"strings"
	"time"

	"reefcontrol/internal/models"
	"reefcontrol/internal/protocol"
)

// heater zones addressable over the API.
var heaterZones = map[string]bool{"water": true, "reserve": true}

func validAxis(axis string) (string, error) {
	a := strings.ToUpper(strings.TrimSpace(axis))
	for _, known := range models.Axes {
		if a == known {
			return a, nil
		}
	}
	return "", validationf("unknown axis %q", axis)
}

// Connect opens the serial link, applies the handshake status payload
// and pushes the persisted heater targets to the board.
func (c *Controller) Connect(port string) error {
	if strings.TrimSpace(port) == "" {
		return validationf("port is required")
	}
	hello, status, err := c.tr.Open(port)
	if err != nil {
		return &ConnectionError{Port: port, Err: err}
	}
	c.st.mutate(func(st *models.DeviceState) {
		st.Connected = true
		st.Port = port
		st.LastError = nil
	})
	if sr, ok := protocol.Classify(status).(protocol.StatusReport); ok {
		c.applyStatus(sr.Fields)
	}
	c.log.Infow("device_connected", "port", port, "greeting", hello)
	c.recordEvent(models.EventConnect, "disconnected", "connected", "api", map[string]any{"port": port})
	c.pushHeaterOutputs()
	return nil
}

// Disconnect closes the link. Safe when already closed.
func (c *Controller) Disconnect() {
	c.tr.Close()
	c.st.mutate(func(st *models.DeviceState) {
		st.Connected = false
		st.Port = ""
	})
	c.lastTempQuery = time.Time{}
	c.lastLevelQuery = time.Time{}
	c.recordEvent(models.EventConnect, "connected", "disconnected", "api", nil)
}

// ---------- heater ----------

func (c *Controller) SetHeaterTarget(zone string, celsius float64) error {
	zone = strings.ToLower(strings.TrimSpace(zone))
	if !heaterZones[zone] {
		return validationf("unknown heater zone %q", zone)
	}
	if celsius < 0 || celsius > 40 {
		return validationf("target %.1f out of range [0, 40]", celsius)
	}
	auto := false
	c.st.mutate(func(st *models.DeviceState) {
		st.Heater.Targets[zone] = celsius
		auto = st.Heater.Auto
	})
	c.persistHeaterConfig()
	if auto {
		return c.evaluateHeat("api")
	}
	c.pushHeaterOutputs()
	return nil
}

func (c *Controller) SetHeaterAuto(enable bool) error {
	c.st.mutate(func(st *models.DeviceState) { st.Heater.Auto = enable })
	c.persistHeaterConfig()
	if enable {
		return c.evaluateHeat("api")
	}
	// Manual override keeps the last commanded outputs.
	return nil
}

func (c *Controller) SetHeaterHysteresis(value float64) error {
	if value <= 0 || value > 5 {
		return validationf("hysteresis %.2f out of range (0, 5]", value)
	}
	c.st.mutate(func(st *models.DeviceState) { st.Heater.Hysteresis = value })
	c.persistHeaterConfig()
	return nil
}

// SetHeaterPower forces both zones on or off. Refused while the
// hysteresis loop owns the zones.
func (c *Controller) SetHeaterPower(enable bool) error {
	var refused bool
	c.st.mutate(func(st *models.DeviceState) {
		if st.Heater.Auto && !enable {
			refused = true
			return
		}
		st.Heater.Enabled = enable
		for zone := range st.Heater.State {
			st.Heater.State[zone] = enable
		}
	})
	if refused {
		return validationf("cannot force heaters off in automatic mode")
	}
	c.persistHeaterConfig()
	if err := c.relays.Heater.Set(enable); err != nil {
		return err
	}
	c.pushHeaterOutputs()
	return nil
}

// ---------- fan ----------

func (c *Controller) SetFanThreshold(celsius float64) error {
	if celsius <= 0 || celsius > 45 {
		return validationf("fan threshold %.1f out of range (0, 45]", celsius)
	}
	c.st.mutate(func(st *models.DeviceState) {
		st.Fan.Threshold = celsius
		st.Fan.Auto = true
	})
	if c.tr.Connected() {
		if err := c.send(protocol.CmdAutoCool(celsius), commandTimeout); err != nil {
			return err
		}
		return c.send(protocol.CmdFan(-1), commandTimeout)
	}
	return nil
}

func (c *Controller) SetFanAuto(enable bool) error {
	if enable {
		st := c.st.snapshot()
		return c.SetFanThreshold(st.Fan.Threshold)
	}
	c.st.mutate(func(st *models.DeviceState) { st.Fan.Auto = false })
	if c.tr.Connected() {
		return c.send(protocol.CmdFan(0), commandTimeout)
	}
	return nil
}

// SetFanManual sets a fixed PWM value and leaves automatic mode.
func (c *Controller) SetFanManual(value int) error {
	if value < 0 || value > 255 {
		return validationf("fan value %d out of range [0, 255]", value)
	}
	c.st.mutate(func(st *models.DeviceState) {
		st.Fan.Auto = false
		st.Fan.Value = value
		st.Fan.On = value > 0
	})
	if err := c.relays.Fan.Set(value > 0); err != nil {
		return err
	}
	if c.tr.Connected() {
		return c.send(protocol.CmdFan(value), commandTimeout)
	}
	return nil
}

// ---------- light ----------

// ToggleLight flips the relay, or forces it when state is non-nil.
func (c *Controller) ToggleLight(state *bool) error {
	want := false
	if state == nil {
		want = !c.st.snapshot().Light.On
	} else {
		want = *state
	}
	return c.setLight(want, "api")
}

func (c *Controller) SetLightAuto(enable bool) {
	c.st.mutate(func(st *models.DeviceState) { st.Light.Auto = enable })
}

// UpdateLightSchedule rewrites one weekday's window. Empty strings
// keep the stored value.
func (c *Controller) UpdateLightSchedule(day, on, off string) error {
	key := strings.ToLower(strings.TrimSpace(day))
	known := false
	for _, d := range models.DayKeys {
		if key == d {
			known = true
			break
		}
	}
	if !known {
		return validationf("unknown day %q", day)
	}
	if on != "" {
		if _, err := parseClock(on); err != nil {
			return err
		}
	}
	if off != "" {
		if _, err := parseClock(off); err != nil {
			return err
		}
	}
	c.st.mutate(func(st *models.DeviceState) {
		w := st.Light.Schedule[key]
		if on != "" {
			w.On = on
		}
		if off != "" {
			w.Off = off
		}
		st.Light.Schedule[key] = w
	})
	// The settings writer marshals outside the store lock, so it gets
	// a detached copy, never the live map.
	return c.settings.SaveLightSchedule(c.st.snapshot().Light.Schedule)
}

// ---------- dosing pumps ----------

// UpdatePumpProfile patches one axis profile; nil fields keep the
// stored value.
func (c *Controller) UpdatePumpProfile(axis string, name *string, volumeML *float64, direction *int) error {
	a, err := validAxis(axis)
	if err != nil {
		return err
	}
	if volumeML != nil && *volumeML <= 0 {
		return validationf("volume must be positive, got %.2f", *volumeML)
	}
	if direction != nil && *direction != 1 && *direction != -1 {
		return validationf("direction must be +1 or -1, got %d", *direction)
	}
	c.st.mutate(func(st *models.DeviceState) {
		p := st.Pumps[a]
		if name != nil && *name != "" {
			p.Name = *name
		}
		if volumeML != nil {
			p.VolumeML = *volumeML
		}
		if direction != nil {
			p.Direction = *direction
		}
		st.Pumps[a] = p
	})
	return c.settings.SavePumpProfiles(c.st.snapshot().Pumps)
}

// RunDoseCycle doses one axis per its profile right now, bypassing the
// schedule debounce (explicit human invocation).
func (c *Controller) RunDoseCycle(axis, reason string) error {
	a, err := validAxis(axis)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "manual"
	}
	return c.runDose(a, reason)
}

// runDose executes one profile-sized dose: interlock, step command,
// optional delayed motor-off, persisted last-run time. Shared by the
// schedule loop and RunDoseCycle; debounce is the caller's concern.
func (c *Controller) runDose(axis, cause string) error {
	st := c.st.snapshot()
	profile, ok := st.Pumps[axis]
	if !ok {
		return validationf("no profile for axis %q", axis)
	}
	steps := int(profile.VolumeML * float64(c.stepsPerML))
	if steps <= 0 {
		return validationf("profile volume %.2f yields no steps", profile.VolumeML)
	}
	if profile.Direction < 0 {
		steps = -steps
	}
	if err := c.doseJob("dose "+axis, axis, steps, st.Speed); err != nil {
		return err
	}
	now := c.now()
	c.st.mutate(func(s *models.DeviceState) {
		s.LastDose[axis] = now
	})
	if err := c.settings.SaveLastDose(c.st.snapshot().LastDose); err != nil {
		c.log.Errorw("save_last_dose_failed", "axis", axis, "err", err)
	}
	c.recordEvent(models.EventDose, "", "dosed", cause, map[string]any{
		"axis":      axis,
		"volume_ml": profile.VolumeML,
		"steps":     steps,
	})
	return nil
}

// Pump runs a manual job on one axis using the global step count.
func (c *Controller) Pump(axis string, backwards bool) error {
	a, err := validAxis(axis)
	if err != nil {
		return err
	}
	st := c.st.snapshot()
	steps := st.Steps
	if backwards {
		steps = -steps
	}
	if err := c.doseJob("pump "+a, a, steps, st.Speed); err != nil {
		return err
	}
	c.recordEvent(models.EventPump, "", "ran", "manual", map[string]any{
		"axis":      a,
		"steps":     steps,
		"backwards": backwards,
	})
	return nil
}

// doseJob is the shared execution path for scheduled and manual pump
// work: safety interlock, floored speed, step command, delayed MTR OFF.
func (c *Controller) doseJob(op, axis string, steps, speed int) error {
	if err := c.checkInterlock(op); err != nil {
		return err
	}
	if speed < minPumpSpeed {
		speed = minPumpSpeed
	}
	if err := c.send(protocol.CmdPump(axis, steps, speed), commandTimeout); err != nil {
		return err
	}
	st := c.st.snapshot()
	if st.MotorAutoOff {
		abs := steps
		if abs < 0 {
			abs = -abs
		}
		// Step pulse period scales with speed; the board needs
		// roughly steps*speed*2 microseconds to finish the move.
		estimate := time.Duration(abs*speed*2)*time.Microsecond + motorOffExtraSettle
		c.delays.Schedule("motor-off", estimate, func() {
			if err := c.send(protocol.CmdMotorsOff, time.Second); err != nil {
				c.log.Debugw("auto_motor_off_failed", "err", err)
			}
		})
	}
	return nil
}

// TogglePump flips the circulation pump relay, or forces it.
func (c *Controller) TogglePump(state *bool) error {
	prev, want := false, false
	c.st.mutate(func(st *models.DeviceState) {
		prev = st.PumpOn
		if state == nil {
			want = !st.PumpOn
		} else {
			want = *state
		}
		st.PumpOn = want
	})
	if err := c.relays.Pump.Set(want); err != nil {
		return err
	}
	if prev != want {
		c.recordEvent(models.EventPump, onOff(prev), onOff(want), "api", nil)
	}
	return nil
}

// ---------- safety & misc ----------

func (c *Controller) SetProtectMode(enable bool) {
	c.st.mutate(func(st *models.DeviceState) { st.Protect = enable })
}

func (c *Controller) SetMotorAutoOff(enable bool) {
	c.st.mutate(func(st *models.DeviceState) { st.MotorAutoOff = enable })
}

// EmergencyStop cuts stepper power immediately and cancels any pending
// auto motor-off.
func (c *Controller) EmergencyStop() error {
	c.delays.Cancel("motor-off")
	if err := c.send(protocol.CmdMotorsOff, commandTimeout); err != nil {
		return err
	}
	c.recordEvent(models.EventEmergency, "", "motors off", "api", nil)
	return nil
}

func (c *Controller) SetGlobalSpeed(speed int) error {
	if speed <= 0 {
		return validationf("speed must be positive, got %d", speed)
	}
	c.st.mutate(func(st *models.DeviceState) { st.Speed = speed })
	return nil
}

func (c *Controller) SetSteps(steps int) error {
	if steps <= 0 {
		return validationf("steps must be positive, got %d", steps)
	}
	c.st.mutate(func(st *models.DeviceState) { st.Steps = steps })
	return nil
}

func (c *Controller) SetServo(angle int) error {
	if angle < 0 || angle > 180 {
		return validationf("servo angle %d out of range [0, 180]", angle)
	}
	if err := c.send(protocol.CmdServo(angle), commandTimeout); err != nil {
		return err
	}
	c.st.mutate(func(st *models.DeviceState) { st.ServoAngle = angle })
	return nil
}

// Dispense runs the on-board feeder macro.
func (c *Controller) Dispense() error {
	return c.send(protocol.CmdServoFeed, commandTimeout)
}

// Raw forwards an arbitrary command line (diagnostics console).
func (c *Controller) Raw(cmd string) error {
	if strings.TrimSpace(cmd) == "" {
		return validationf("empty command")
	}
	return c.send(cmd, commandTimeout)
}

// ---------- feeder & dosing schedules ----------

func (c *Controller) UpdateFeederSchedule(cfg models.FeederConfig) error {
	for i, e := range cfg.Entries {
		if _, err := parseClock(e.Time); err != nil {
			return err
		}
		if e.StopPump && e.StopDuration <= 0 {
			return validationf("entry %d: stop_duration must be positive when stop_pump is set", i)
		}
	}
	c.st.mutate(func(st *models.DeviceState) { st.Feeder = cfg })
	return c.settings.SaveFeederConfig(cfg)
}

func (c *Controller) UpdateDosingSchedule(cfg models.DosingConfig) error {
	for axis, at := range cfg.Times {
		if _, err := validAxis(axis); err != nil {
			return err
		}
		if _, err := parseClock(at); err != nil {
			return err
		}
	}
	normalized := models.DosingConfig{Auto: cfg.Auto, Times: map[string]string{}}
	for axis, at := range cfg.Times {
		normalized.Times[strings.ToUpper(strings.TrimSpace(axis))] = at
	}
	c.st.mutate(func(st *models.DeviceState) { st.Dosing = normalized })
	return c.settings.SaveDosingConfig(normalized)
}

// TriggerFeederNow feeds immediately through the same execution path
// as the schedule loop, without the per-entry debounce. The trigger
// outlives the caller's request context.
func (c *Controller) TriggerFeederNow(target, method string, stopPump bool, stopDuration int) error {
	if strings.TrimSpace(target) == "" {
		return validationf("feed target is required")
	}
	if stopPump && stopDuration <= 0 {
		return validationf("stop_duration must be positive when stop_pump is set")
	}
	entry := models.FeedEntry{
		Target:       target,
		Method:       method,
		StopPump:     stopPump,
		StopDuration: stopDuration,
	}
	go c.executeFeed(context.Background(), entry, "manual")
	return nil
}
