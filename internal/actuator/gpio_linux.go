//go:build linux

package actuator

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var hostInitOnce sync.Once
var hostInitErr error

// gpioRelay drives one active-low relay channel through periph.
type gpioRelay struct {
	mu  sync.Mutex
	pin gpio.PinIO
	on  bool
}

func (r *gpioRelay) Set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Relay boards on this tank are active-low.
	level := gpio.High
	if on {
		level = gpio.Low
	}
	if err := r.pin.Out(level); err != nil {
		return fmt.Errorf("drive %s: %w", r.pin.Name(), err)
	}
	r.on = on
	return nil
}

func (r *gpioRelay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

func openPin(bcm int) (Relay, error) {
	name := fmt.Sprintf("GPIO%d", bcm)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("pin %s not found", name)
	}
	// Park the relay off (high) before handing it out.
	if err := pin.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("init %s: %w", name, err)
	}
	return &gpioRelay{pin: pin}, nil
}

func newGPIOBank(pins Pins) (*Bank, error) {
	hostInitOnce.Do(func() {
		_, hostInitErr = host.Init()
	})
	if hostInitErr != nil {
		return nil, fmt.Errorf("periph host init: %w", hostInitErr)
	}

	light, err := openPin(pins.Light)
	if err != nil {
		return nil, err
	}
	pump, err := openPin(pins.Pump)
	if err != nil {
		return nil, err
	}
	fan, err := openPin(pins.Fan)
	if err != nil {
		return nil, err
	}
	heater, err := openPin(pins.Heater)
	if err != nil {
		return nil, err
	}
	return &Bank{Light: light, Pump: pump, Fan: fan, Heater: heater}, nil
}
