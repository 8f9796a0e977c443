// Package controller implements the device controller core: it owns
// the serial line transport, synchronizes commands with asynchronous
// replies, reconciles status reports into a single locked state record
// and runs the automation loops (heating, fan, light, feeder, dosing).
package controller

import (
	"context"
	"time"

	"reefcontrol/internal/actuator"
	"reefcontrol/internal/logger"
	"reefcontrol/internal/models"
	"reefcontrol/internal/repository"
	"reefcontrol/internal/serialio"
)

// Loop cadences and protocol timing.
const (
	commandTimeout = 2 * time.Second
	heatTick       = 2 * time.Second
	fanTick        = 1 * time.Second
	lightTick      = 30 * time.Second
	feederTick     = 10 * time.Second
	dosingTick     = 10 * time.Second
	reconnectTick  = 10 * time.Second
	pollTick       = 1 * time.Second

	tempQueryEvery  = 2 * time.Second
	levelQueryEvery = 5 * time.Second

	// One scheduled trigger per clock-minute; the window only has to
	// outlast the 10 s tick comfortably.
	feedDebounce = 70 * time.Second

	minPumpSpeed        = 50
	defaultStepsPerML   = 100
	motorOffExtraSettle = 500 * time.Millisecond
)

// Transport is the line transport contract (implemented by
// serialio.Client; faked in tests).
type Transport interface {
	Open(port string) (hello, status string, err error)
	WriteLine(cmd string) error
	Close()
	Connected() bool
	Port() string
}

// FeederTrigger invokes the external feeder module.
type FeederTrigger interface {
	Feed(ctx context.Context, target, method string) error
}

// Config carries the controller's injected dependencies. Transport,
// Relays and Feeder must be non-nil; Probe and Now default when nil.
type Config struct {
	Log        *logger.Logger
	Transport  Transport
	Relays     *actuator.Bank
	Events     repository.EventRepo
	Settings   repository.Settings
	Feeder     FeederTrigger
	StepsPerML int
	Probe      func() string    // reconnect port probe
	Now        func() time.Time // clock, overridable in tests
}

// Controller is the device controller core. One instance per process.
type Controller struct {
	log        *logger.Logger
	tr         Transport
	relays     *actuator.Bank
	events     repository.EventRepo
	settings   repository.Settings
	feeder     FeederTrigger
	stepsPerML int
	probe      func() string
	now        func() time.Time

	st     *store
	sync   *cmdSync
	delays *delayQueue

	fed fedLog // feeder per-entry debounce

	lastTempQuery  time.Time // poll loop only
	lastLevelQuery time.Time
}

// New wires a controller and overlays the persisted settings documents
// onto the default state.
func New(cfg Config) *Controller {
	c := &Controller{
		log:        cfg.Log,
		tr:         cfg.Transport,
		relays:     cfg.Relays,
		events:     cfg.Events,
		settings:   cfg.Settings,
		feeder:     cfg.Feeder,
		stepsPerML: cfg.StepsPerML,
		probe:      cfg.Probe,
		now:        cfg.Now,
		st:         newStore(),
		sync:       newCmdSync(),
		delays:     newDelayQueue(),
		fed:        newFedLog(),
	}
	if c.stepsPerML <= 0 {
		c.stepsPerML = defaultStepsPerML
	}
	if c.probe == nil {
		c.probe = serialio.FirstCandidate
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.loadSettings()
	return c
}

// loadSettings merges the persisted documents over the defaults.
// A missing or broken document leaves the defaults in place.
func (c *Controller) loadSettings() {
	if pumps, ok, err := c.settings.LoadPumpProfiles(); err != nil {
		c.log.Errorw("load_pump_profiles_failed", "err", err)
	} else if ok {
		c.st.mutate(func(st *models.DeviceState) {
			for axis, p := range pumps {
				st.Pumps[axis] = p
			}
		})
	}

	if sched, ok, err := c.settings.LoadLightSchedule(); err != nil {
		c.log.Errorw("load_light_schedule_failed", "err", err)
	} else if ok {
		c.st.mutate(func(st *models.DeviceState) {
			for day, w := range sched {
				st.Light.Schedule[day] = w
			}
		})
	}

	if heat, ok, err := c.settings.LoadHeaterConfig(); err != nil {
		c.log.Errorw("load_heat_config_failed", "err", err)
	} else if ok {
		c.st.mutate(func(st *models.DeviceState) {
			for zone, t := range heat.Targets {
				st.Heater.Targets[zone] = t
			}
			for zone, on := range heat.State {
				st.Heater.State[zone] = on
			}
			st.Heater.Auto = heat.Auto
			st.Heater.Enabled = heat.Enabled
			if heat.Hysteresis > 0 {
				st.Heater.Hysteresis = heat.Hysteresis
			}
		})
	}

	if feeder, ok, err := c.settings.LoadFeederConfig(); err != nil {
		c.log.Errorw("load_feeder_config_failed", "err", err)
	} else if ok {
		c.st.mutate(func(st *models.DeviceState) { st.Feeder = feeder })
	}

	if dosing, ok, err := c.settings.LoadDosingConfig(); err != nil {
		c.log.Errorw("load_dosing_config_failed", "err", err)
	} else if ok {
		c.st.mutate(func(st *models.DeviceState) {
			st.Dosing.Auto = dosing.Auto
			for axis, t := range dosing.Times {
				st.Dosing.Times[axis] = t
			}
		})
	}

	if last, ok, err := c.settings.LoadLastDose(); err != nil {
		c.log.Errorw("load_last_dose_failed", "err", err)
	} else if ok {
		c.st.mutate(func(st *models.DeviceState) {
			for axis, t := range last {
				st.LastDose[axis] = t
			}
		})
	}
}

// Run starts the automation loops, the reconnect supervisor and the
// telemetry poller. They live until ctx is canceled; a failed
// iteration is logged and the loop keeps its schedule.
func (c *Controller) Run(ctx context.Context) {
	go c.runLoop(ctx, "heat", heatTick, func() error { return c.evaluateHeat("tick") })
	go c.runLoop(ctx, "fan", fanTick, c.evaluateFan)
	go c.runLoop(ctx, "light", lightTick, c.evaluateLight)
	go c.runLoop(ctx, "feeder", feederTick, func() error { return c.tickFeeder(ctx) })
	go c.runLoop(ctx, "dosing", dosingTick, c.tickDosing)
	go c.runLoop(ctx, "reconnect", reconnectTick, c.tickReconnect)
	go c.runLoop(ctx, "poll", pollTick, c.tickPoll)
}

func (c *Controller) runLoop(ctx context.Context, name string, tick time.Duration, fn func() error) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := fn(); err != nil {
				c.log.Errorw("loop_iteration_failed", "loop", name, "err", err)
			}
		}
	}
}

// Shutdown cancels pending delayed actions and closes the link.
func (c *Controller) Shutdown() {
	c.delays.StopAll()
	c.tr.Close()
}

// Snapshot returns a deep copy of the reconciled device state.
func (c *Controller) Snapshot() models.DeviceState {
	return c.st.snapshot()
}

// PendingDelayed reports how many delayed actions are armed.
func (c *Controller) PendingDelayed() int {
	return c.delays.Len()
}

// recordEvent hands a telemetry record to the event log. Failures are
// logged and never propagated.
func (c *Controller) recordEvent(kind, prev, next, cause string, meta any) {
	ev := models.DeviceEvent{
		OccurredAt: c.now().UTC(),
		Kind:       kind,
		Previous:   prev,
		Next:       next,
		Cause:      cause,
		Metadata:   meta,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.events.Append(ctx, ev); err != nil {
		c.log.Errorw("event_append_failed", "kind", kind, "err", err)
	}
}
