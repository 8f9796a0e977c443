package protocol

import (
	"fmt"
	"strings"
)

// Handshake and polling queries.
const (
	QueryHello  = "HELLO?"
	QueryStatus = "STATUS?"
	QueryTemp   = "TEMP?"
	QueryLevel  = "LEVEL?"
)

// CmdMotorsOff cuts power to all stepper drivers.
const CmdMotorsOff = "MTR OFF"

// CmdServoFeed runs the feeder macro on the board.
const CmdServoFeed = "SERVOFEED"

// CmdPump formats a stepper move: signed steps encode direction.
func CmdPump(axis string, steps, speed int) string {
	return fmt.Sprintf("PUMP %s %d %d", strings.ToUpper(axis), steps, speed)
}

// CmdHeatWater sets the water heater output target.
func CmdHeatWater(celsius float64) string {
	return fmt.Sprintf("HEATW %.2f", celsius)
}

// CmdHeatReserve sets the reserve heater output target.
func CmdHeatReserve(celsius float64) string {
	return fmt.Sprintf("HEATR %.2f", celsius)
}

// CmdFan sets a manual fan PWM value; -1 hands control back to the
// board's autocool routine.
func CmdFan(value int) string {
	return fmt.Sprintf("FAN %d", value)
}

// CmdAutoCool sets the on-board fan threshold.
func CmdAutoCool(celsius float64) string {
	return fmt.Sprintf("AUTOCOOL %.2f", celsius)
}

// CmdServo positions the feeder servo.
func CmdServo(angle int) string {
	return fmt.Sprintf("SERVO %d", angle)
}
