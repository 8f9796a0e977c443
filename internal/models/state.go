package models

import "time"

// Dosing axes known to the RAMPS board, in display order.
var Axes = []string{"X", "Y", "Z", "E"}

// Weekday keys used by the light schedule document, Monday first.
var DayKeys = []string{
	"monday",
	"tuesday",
	"wednesday",
	"thursday",
	"friday",
	"saturday",
	"sunday",
}

// TempReading keeps the raw text from the device next to the parsed
// value. Raw is what the UI displays ("--.-" until the first report);
// Value is nil while the channel is unreadable.
type TempReading struct {
	Raw   string   `json:"raw"`
	Value *float64 `json:"value,omitempty"`
}

// PHReading is the probe voltage, the raw ADC value and the derived pH.
type PHReading struct {
	Voltage *float64 `json:"voltage,omitempty"`
	Raw     *float64 `json:"raw,omitempty"`
	Value   *float64 `json:"value,omitempty"`
}

// LevelState mirrors the float switch report. Low/High are kept as the
// device's own tokens ("?" before the first report, then "0"/"1").
type LevelState struct {
	Low   string `json:"low"`
	High  string `json:"high"`
	Alert string `json:"alert"`
}

// HeaterConfig is the persisted heater document plus the live per-zone
// relay states computed by the hysteresis loop.
type HeaterConfig struct {
	Targets    map[string]float64 `json:"targets"`
	State      map[string]bool    `json:"state"`
	Auto       bool               `json:"auto"`
	Enabled    bool               `json:"enabled"`
	Hysteresis float64            `json:"hysteresis"`
}

// FanConfig holds the cooling fan threshold and its current output.
type FanConfig struct {
	Threshold float64 `json:"threshold"`
	Auto      bool    `json:"auto"`
	On        bool    `json:"on"`
	Value     int     `json:"value"` // PWM value last reported by the device
}

// DoseProfile describes one peristaltic pump channel.
type DoseProfile struct {
	Name      string  `json:"name"`
	VolumeML  float64 `json:"volume_ml"`
	Direction int     `json:"direction"` // +1 forward, -1 reverse
}

// DayWindow is a daily on/off pair, both "HH:MM".
type DayWindow struct {
	On  string `json:"on"`
	Off string `json:"off"`
}

// LightConfig is the weekly schedule plus the live relay state.
type LightConfig struct {
	Schedule map[string]DayWindow `json:"schedule"`
	Auto     bool                 `json:"auto"`
	On       bool                 `json:"on"`
}

// FeedEntry is one scheduled feeding trigger.
type FeedEntry struct {
	Time         string `json:"time"` // "HH:MM"
	Target       string `json:"target"`
	Method       string `json:"method"`
	StopPump     bool   `json:"stop_pump"`
	StopDuration int    `json:"stop_duration"` // minutes the pump stays paused
}

// FeederConfig is the persisted feeder schedule document.
type FeederConfig struct {
	Auto    bool        `json:"auto"`
	Entries []FeedEntry `json:"entries"`
}

// DosingConfig is the persisted peristaltic schedule: one daily
// trigger time per axis.
type DosingConfig struct {
	Auto  bool              `json:"auto"`
	Times map[string]string `json:"times"` // axis -> "HH:MM"
}

// DeviceError is the last ERR reply received from the board.
type DeviceError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Raw     string    `json:"raw"`
	At      time.Time `json:"at"`
}

// DeviceState is the single reconciled record for the whole tank.
// It is owned by the controller's state store and must only be read
// through Snapshot() / mutated under the store lock.
type DeviceState struct {
	Connected bool         `json:"connected"`
	Port      string       `json:"port,omitempty"`
	LastError *DeviceError `json:"last_error,omitempty"`

	TempWater   TempReading `json:"temp_water"`
	TempAir     TempReading `json:"temp_air"`
	TempReserve TempReading `json:"temp_reserve"`
	TempSump    TempReading `json:"temp_sump"`
	PH          PHReading   `json:"ph"`
	Level       LevelState  `json:"level"`

	Heater HeaterConfig `json:"heater"`
	Fan    FanConfig    `json:"fan"`
	Light  LightConfig  `json:"light"`
	Feeder FeederConfig `json:"feeder"`
	Dosing DosingConfig `json:"dosing"`

	Pumps    map[string]DoseProfile `json:"pumps"`     // axis -> profile
	LastDose map[string]time.Time   `json:"last_dose"` // axis -> last run

	MotorsPowered bool            `json:"motors_powered"`
	AxisPowered   map[string]bool `json:"axis_powered"`
	MotorAutoOff  bool            `json:"motor_auto_off"`

	Steps      int  `json:"steps"` // steps per manual pump job
	Speed      int  `json:"speed"`
	ServoAngle int  `json:"servo_angle"`
	PumpOn     bool `json:"pump_on"` // circulation pump relay
	Protect    bool `json:"protect"`
}

// NewDeviceState returns the boot-time defaults, matching what the
// settings documents seed on first run.
func NewDeviceState() DeviceState {
	st := DeviceState{
		TempWater:   TempReading{Raw: "--.-"},
		TempAir:     TempReading{Raw: "--.-"},
		TempReserve: TempReading{Raw: "--.-"},
		TempSump:    TempReading{Raw: "--.-"},
		Level:       LevelState{Low: "?", High: "?", Alert: "?"},
		Heater: HeaterConfig{
			Targets:    map[string]float64{"water": 25.0, "reserve": 30.0},
			State:      map[string]bool{"water": false, "reserve": false},
			Auto:       true,
			Enabled:    true,
			Hysteresis: 0.3,
		},
		Fan: FanConfig{Threshold: 28.0, Auto: true},
		Light: LightConfig{
			Schedule: map[string]DayWindow{},
			Auto:     true,
		},
		Feeder:       FeederConfig{Auto: true},
		Dosing:       DosingConfig{Auto: true, Times: map[string]string{}},
		Pumps:        map[string]DoseProfile{},
		LastDose:     map[string]time.Time{},
		AxisPowered:  map[string]bool{},
		MotorAutoOff: true,
		Steps:        3200,
		Speed:        300,
		ServoAngle:   10,
		PumpOn:       true,
		Protect:      true,
	}
	for _, day := range DayKeys {
		st.Light.Schedule[day] = DayWindow{On: "08:00", Off: "20:00"}
	}
	for _, axis := range Axes {
		st.Pumps[axis] = DoseProfile{Name: axis, VolumeML: 10.0, Direction: 1}
	}
	return st
}

// Clone deep-copies the state so callers never share internal maps.
func (s DeviceState) Clone() DeviceState {
	out := s
	out.Heater.Targets = cloneFloatMap(s.Heater.Targets)
	out.Heater.State = cloneBoolMap(s.Heater.State)
	out.Light.Schedule = cloneWindowMap(s.Light.Schedule)
	out.Feeder.Entries = append([]FeedEntry(nil), s.Feeder.Entries...)
	out.Dosing.Times = cloneStringMap(s.Dosing.Times)
	out.Pumps = clonePumpMap(s.Pumps)
	out.LastDose = cloneTimeMap(s.LastDose)
	out.AxisPowered = cloneBoolMap(s.AxisPowered)
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	out.TempWater.Value = cloneFloat(s.TempWater.Value)
	out.TempAir.Value = cloneFloat(s.TempAir.Value)
	out.TempReserve.Value = cloneFloat(s.TempReserve.Value)
	out.TempSump.Value = cloneFloat(s.TempSump.Value)
	out.PH.Voltage = cloneFloat(s.PH.Voltage)
	out.PH.Raw = cloneFloat(s.PH.Raw)
	out.PH.Value = cloneFloat(s.PH.Value)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneWindowMap(m map[string]DayWindow) map[string]DayWindow {
	out := make(map[string]DayWindow, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonePumpMap(m map[string]DoseProfile) map[string]DoseProfile {
	out := make(map[string]DoseProfile, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTimeMap(m map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
