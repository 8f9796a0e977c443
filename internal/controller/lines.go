package controller

import (
	"strconv"
	"strings"

	"reefcontrol/internal/models"
	"reefcontrol/internal/protocol"
)

// HandleLine is the transport's line callback. Terminal replies
// resolve the pending command; everything else is a status report
// applied to the state store. Runs on the reader goroutine.
func (c *Controller) HandleLine(line string) {
	c.log.Debugw("rx", "line", line)

	switch l := protocol.Classify(line).(type) {
	case protocol.ReplyOK:
		if !c.sync.deliver(reply{ok: true}) {
			c.log.Debugw("unsolicited_ok")
		}
	case protocol.ReplyErr:
		devErr := &models.DeviceError{Code: l.Code, Message: l.Message, Raw: l.Raw, At: c.now()}
		if !c.sync.deliver(reply{err: devErr}) {
			c.st.mutate(func(st *models.DeviceState) { st.LastError = devErr })
			c.log.Errorw("unsolicited_device_error", "code", l.Code, "msg", l.Message)
		}
	case protocol.Greeting:
		c.applyStatus(l.Fields)
	case protocol.StatusReport:
		c.applyStatus(l.Fields)
	case protocol.TempReport:
		c.applyTemps(l.Values)
		// evaluateHeat may push HEATW/HEATR and wait for replies only
		// this goroutine can deliver, so it runs off the reader.
		go func() {
			if err := c.evaluateHeat("report"); err != nil {
				c.log.Errorw("heat_evaluation_failed", "err", err)
			}
		}()
	case protocol.LevelReport:
		c.applyLevels(l.Fields)
	case protocol.Unknown:
		c.log.Debugw("rx_unrecognized", "line", l.Raw)
	}
}

// HandleDisconnect is the transport's link-loss callback.
func (c *Controller) HandleDisconnect(err error) {
	port := ""
	c.st.mutate(func(st *models.DeviceState) {
		port = st.Port
		st.Connected = false
		st.Port = ""
	})
	c.log.Errorw("device_link_lost", "port", port, "err", err)
	c.recordEvent(models.EventConnect, "connected", "disconnected", "read error", map[string]any{"port": port})
}

// transition collects a field flip observed while applying a report so
// the event can be recorded after the lock is released.
type transition struct {
	kind, prev, next, cause string
}

// applyStatus reconciles a semicolon key=value block into the state.
// Unparseable numeric fields are skipped; flag transitions emit events.
func (c *Controller) applyStatus(fields map[string]string) {
	var trans []transition
	c.st.mutate(func(st *models.DeviceState) {
		for key, value := range fields {
			switch key {
			case "mtr":
				on := protocol.ParseBoolFlag(value)
				if on != st.MotorsPowered {
					trans = append(trans, transition{models.EventMotor, onOff(st.MotorsPowered), onOff(on), "status report"})
				}
				st.MotorsPowered = on
			case "fan_val":
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					st.Fan.Value = int(v)
				}
			case "auto_thresh":
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					st.Fan.Threshold = v
				}
			case "pidw_tgt":
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					st.Heater.Targets["water"] = v
				}
			case "pidr_tgt":
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					st.Heater.Targets["reserve"] = v
				}
			case "level_low":
				st.Level.Low = value
			case "level_high":
				st.Level.High = value
			case "level_alert":
				st.Level.Alert = value
			case "tempw":
				setTemp(&st.TempWater, value)
			case "tempa":
				setTemp(&st.TempAir, value)
			case "tempaux":
				setTemp(&st.TempReserve, value)
			case "tempsump":
				setTemp(&st.TempSump, value)
			case "ph_volt":
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					st.PH.Voltage = &v
					st.PH.Value = protocol.PHFromVoltage(&v)
				}
			case "ph_raw":
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					st.PH.Raw = &v
				}
			case "servo":
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					st.ServoAngle = int(v)
				}
			default:
				if axis, ok := strings.CutPrefix(key, "mtr_"); ok {
					a := strings.ToUpper(axis)
					on := protocol.ParseBoolFlag(value)
					if on != st.AxisPowered[a] {
						trans = append(trans, transition{models.EventMotor, onOff(st.AxisPowered[a]), onOff(on), "axis " + a})
					}
					st.AxisPowered[a] = on
				}
			}
		}
	})
	for _, t := range trans {
		c.recordEvent(t.kind, t.prev, t.next, t.cause, nil)
	}
}

// applyTemps ingests a labeled temperature report. Missing labels keep
// their previous reading.
func (c *Controller) applyTemps(values map[string]string) {
	c.st.mutate(func(st *models.DeviceState) {
		if v, ok := values["t_water"]; ok {
			setTemp(&st.TempWater, v)
		}
		if v, ok := values["t_air"]; ok {
			setTemp(&st.TempAir, v)
		}
		if v, ok := values["t_aux"]; ok {
			setTemp(&st.TempReserve, v)
		}
		if v, ok := values["t_sump"]; ok {
			setTemp(&st.TempSump, v)
		}
	})
}

func (c *Controller) applyLevels(fields map[string]string) {
	c.st.mutate(func(st *models.DeviceState) {
		if v, ok := fields["low"]; ok {
			st.Level.Low = v
		}
		if v, ok := fields["high"]; ok {
			st.Level.High = v
		}
		if v, ok := fields["alert"]; ok {
			st.Level.Alert = v
		}
	})
}

// setTemp updates a channel from raw device text. Unparsable or
// non-finite values are ignored so the last good reading stays
// visible.
func setTemp(t *models.TempReading, raw string) {
	v := protocol.ParseTemperature(raw)
	if v == nil {
		return
	}
	t.Raw = strings.TrimSpace(raw)
	t.Value = v
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
