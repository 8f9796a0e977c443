//go:build !linux

package actuator

import "errors"

func newGPIOBank(Pins) (*Bank, error) {
	return nil, errors.New("gpio relays are only supported on linux hosts")
}
