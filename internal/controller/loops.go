package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"reefcontrol/internal/models"
	"reefcontrol/internal/protocol"
)

const clockLayout = "15:04"
const minuteLayout = "2006-01-02 15:04"

// parseClock validates an "HH:MM" string and returns minutes since
// midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, validationf("invalid time %q: want HH:MM", s)
	}
	h, err1 := parseClockPart(hh)
	m, err2 := parseClockPart(mm)
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return 0, validationf("invalid time %q: want HH:MM", s)
	}
	return h*60 + m, nil
}

func parseClockPart(s string) (int, error) {
	if len(s) == 0 || len(s) > 2 {
		return 0, fmt.Errorf("bad length")
	}
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("not a digit")
		}
		n = n*10 + int(ch-'0')
	}
	return n, nil
}

// insideWindow reports whether now falls in [on, off), handling
// windows that wrap past midnight: when on > off the window covers
// now >= on || now < off.
func insideWindow(on, off, now int) bool {
	if on <= off {
		return on <= now && now < off
	}
	return now >= on || now < off
}

// ---------- heating hysteresis ----------

// evaluateHeat recomputes each heater zone against its deadband. Runs
// on the heat tick and on every fresh temperature report.
func (c *Controller) evaluateHeat(cause string) error {
	st := c.st.snapshot()
	if !st.Heater.Auto {
		return nil
	}

	measured := map[string]*float64{
		"water":   st.TempWater.Value,
		"reserve": st.TempReserve.Value,
	}
	h := st.Heater.Hysteresis

	changes := map[string]bool{}
	for zone, temp := range measured {
		target := st.Heater.Targets[zone]
		on := st.Heater.State[zone]
		switch {
		case target <= 0 || temp == nil:
			if on {
				changes[zone] = false
			}
		case *temp < target-h:
			if !on {
				changes[zone] = true
			}
		case *temp > target+h:
			if on {
				changes[zone] = false
			}
		}
		// Inside the deadband the zone holds its last state.
	}
	if len(changes) == 0 {
		return nil
	}

	anyOn := false
	c.st.mutate(func(st *models.DeviceState) {
		for zone, on := range changes {
			st.Heater.State[zone] = on
		}
		for _, on := range st.Heater.State {
			anyOn = anyOn || on
		}
		st.Heater.Enabled = anyOn
	})

	c.persistHeaterConfig()
	if err := c.relays.Heater.Set(anyOn); err != nil {
		c.log.Errorw("heater_relay_failed", "err", err)
	}
	c.pushHeaterOutputs()

	for zone, on := range changes {
		c.recordEvent(models.EventHeater, onOff(!on), onOff(on), cause, map[string]any{
			"zone":   zone,
			"target": st.Heater.Targets[zone],
		})
	}
	return nil
}

// pushHeaterOutputs mirrors the computed zone states to the board:
// a zone that is off gets a zero target. Best effort while connected.
func (c *Controller) pushHeaterOutputs() {
	if !c.tr.Connected() {
		return
	}
	st := c.st.snapshot()
	water, reserve := 0.0, 0.0
	if st.Heater.State["water"] {
		water = st.Heater.Targets["water"]
	}
	if st.Heater.State["reserve"] {
		reserve = st.Heater.Targets["reserve"]
	}
	if err := c.send(protocol.CmdHeatWater(water), commandTimeout); err != nil {
		c.log.Errorw("heatw_failed", "err", err)
	}
	if err := c.send(protocol.CmdHeatReserve(reserve), commandTimeout); err != nil {
		c.log.Errorw("heatr_failed", "err", err)
	}
}

func (c *Controller) persistHeaterConfig() {
	st := c.st.snapshot()
	if err := c.settings.SaveHeaterConfig(st.Heater); err != nil {
		c.log.Errorw("save_heat_config_failed", "err", err)
	}
}

// ---------- fan hysteresis ----------

// evaluateFan drives the fan relay from the water temperature against
// a single threshold. Manual mode leaves the last commanded output.
func (c *Controller) evaluateFan() error {
	st := c.st.snapshot()
	if !st.Fan.Auto || st.TempWater.Value == nil {
		return nil
	}
	want := *st.TempWater.Value >= st.Fan.Threshold
	if want == st.Fan.On {
		return nil
	}
	c.st.mutate(func(st *models.DeviceState) { st.Fan.On = want })
	if err := c.relays.Fan.Set(want); err != nil {
		return err
	}
	c.recordEvent(models.EventFan, onOff(!want), onOff(want), "threshold", map[string]any{
		"measured":  *st.TempWater.Value,
		"threshold": st.Fan.Threshold,
	})
	return nil
}

// ---------- light schedule ----------

// evaluateLight toggles the light relay against today's window.
func (c *Controller) evaluateLight() error {
	st := c.st.snapshot()
	if !st.Light.Auto {
		return nil
	}

	now := c.now()
	day := models.DayKeys[(int(now.Weekday())+6)%7] // Monday-first keys
	window, ok := st.Light.Schedule[day]
	if !ok || window.On == "" || window.Off == "" {
		return nil
	}
	onMin, err := parseClock(window.On)
	if err != nil {
		return nil // malformed schedule entry is a no-op, not a loop error
	}
	offMin, err := parseClock(window.Off)
	if err != nil {
		return nil
	}

	nowMin := now.Hour()*60 + now.Minute()
	want := insideWindow(onMin, offMin, nowMin)
	if want == st.Light.On {
		return nil
	}
	c.log.Infow("light_schedule_toggle", "day", day, "on", want)
	return c.setLight(want, "schedule")
}

// setLight drives the relay and records the transition. Shared by the
// schedule loop and the manual toggle.
func (c *Controller) setLight(on bool, cause string) error {
	prev := false
	c.st.mutate(func(st *models.DeviceState) {
		prev = st.Light.On
		st.Light.On = on
	})
	if err := c.relays.Light.Set(on); err != nil {
		return err
	}
	if prev != on {
		c.recordEvent(models.EventLight, onOff(prev), onOff(on), cause, nil)
	}
	return nil
}

// ---------- feeder schedule ----------

// fedLog debounces scheduled feeder entries keyed by time+method+target.
type fedLog struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newFedLog() fedLog {
	return fedLog{last: map[string]time.Time{}}
}

// shouldFire records the trigger unless the same key already fired
// inside the window.
func (f *fedLog) shouldFire(key string, now time.Time, window time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.last[key]; ok && now.Sub(t) < window {
		return false
	}
	f.last[key] = now
	return true
}

func (c *Controller) tickFeeder(ctx context.Context) error {
	st := c.st.snapshot()
	if !st.Feeder.Auto {
		return nil
	}
	now := c.now()
	clock := now.Format(clockLayout)
	for _, entry := range st.Feeder.Entries {
		if entry.Time != clock {
			continue
		}
		key := entry.Time + "|" + entry.Method + "|" + entry.Target
		if !c.fed.shouldFire(key, now, feedDebounce) {
			continue
		}
		e := entry
		go c.executeFeed(ctx, e, "schedule")
	}
	return nil
}

// executeFeed pauses the circulation pump when asked (resuming it
// later only if it was actually running) and invokes the feeder.
func (c *Controller) executeFeed(ctx context.Context, entry models.FeedEntry, cause string) {
	if entry.StopPump {
		wasRunning := false
		c.st.mutate(func(st *models.DeviceState) {
			wasRunning = st.PumpOn
			if wasRunning {
				st.PumpOn = false
			}
		})
		if wasRunning {
			if err := c.relays.Pump.Set(false); err != nil {
				c.log.Errorw("pump_pause_failed", "err", err)
			}
			c.recordEvent(models.EventPump, "on", "off", "feed pause", nil)
			resumeAfter := time.Duration(entry.StopDuration) * time.Minute
			c.delays.Schedule("pump-resume", resumeAfter, func() {
				c.st.mutate(func(st *models.DeviceState) { st.PumpOn = true })
				if err := c.relays.Pump.Set(true); err != nil {
					c.log.Errorw("pump_resume_failed", "err", err)
				}
				c.recordEvent(models.EventPump, "off", "on", "feed resume", nil)
			})
		}
	}

	if err := c.feeder.Feed(ctx, entry.Target, entry.Method); err != nil {
		// Best effort: log and let the next scheduled minute retry.
		c.log.Errorw("feed_trigger_failed", "target", entry.Target, "method", entry.Method, "err", err)
		return
	}
	c.recordEvent(models.EventFeed, "", "fed", cause, map[string]any{
		"target": entry.Target,
		"method": entry.Method,
	})
}

// ---------- peristaltic dosing schedule ----------

func (c *Controller) tickDosing() error {
	st := c.st.snapshot()
	if !st.Dosing.Auto {
		return nil
	}
	now := c.now()
	clock := now.Format(clockLayout)
	for axis, at := range st.Dosing.Times {
		if at != clock {
			continue
		}
		if last, ok := st.LastDose[axis]; ok && last.Format(minuteLayout) == now.Format(minuteLayout) {
			continue // already ran this minute
		}
		if err := c.runDose(axis, "schedule"); err != nil {
			c.log.Errorw("scheduled_dose_failed", "axis", axis, "err", err)
		}
	}
	return nil
}

// ---------- reconnect supervisor ----------

func (c *Controller) tickReconnect() error {
	if c.tr.Connected() {
		return nil
	}
	port := c.probe()
	if port == "" {
		return nil
	}
	if err := c.Connect(port); err != nil {
		c.log.Infow("reconnect_attempt_failed", "port", port, "err", err)
	}
	return nil
}

// ---------- telemetry poller ----------

// tickPoll issues TEMP?/LEVEL? queries on their own cadence while
// connected. Reports come back asynchronously through the reader.
func (c *Controller) tickPoll() error {
	if !c.tr.Connected() {
		return nil
	}
	now := c.now()
	if now.Sub(c.lastTempQuery) >= tempQueryEvery {
		c.lastTempQuery = now
		if err := c.sendQuery(protocol.QueryTemp); err != nil {
			c.log.Debugw("temp_query_failed", "err", err)
		}
	}
	if now.Sub(c.lastLevelQuery) >= levelQueryEvery {
		c.lastLevelQuery = now
		if err := c.sendQuery(protocol.QueryLevel); err != nil {
			c.log.Debugw("level_query_failed", "err", err)
		}
	}
	return nil
}
