package protocol

import (
	"math"
	"strconv"
	"strings"
)

// Line prefixes of the serial protocol.
const (
	GreetingPrefix = "HELLO OK"
	StatusPrefix   = "STATUS;"
	tempPrefix     = "T_"
	levelPrefix    = "LEVEL"
)

// Generic error code used for the bare "ERR:message" reply format.
const GenericErrCode = "MEGA"

// Line is one classified inbound serial line. Exactly one concrete
// type is produced per line; unrecognized input becomes Unknown, which
// callers treat as a no-op.
type Line interface{ isLine() }

// ReplyOK is the terminal success reply to a command.
type ReplyOK struct{}

// ReplyErr is a terminal error reply, either "ERR|CODE|message" or
// "ERR:message" (generic code).
type ReplyErr struct {
	Code    string
	Message string
	Raw     string
}

// Greeting is the handshake banner; it may carry a status payload
// after the first semicolon.
type Greeting struct {
	Fields map[string]string
}

// StatusReport is a "STATUS;k=v;k=v" block.
type StatusReport struct {
	Fields map[string]string
}

// TempReport is a labeled temperature line such as
// "T_WATER:25.1C|T_AIR:24.0C|T_AUX:29.8C".
type TempReport struct {
	Values map[string]string // lowercased label -> numeric text
}

// LevelReport is a float-switch line: "LEVEL low=0 high=1 alert=0".
type LevelReport struct {
	Fields map[string]string
}

// Unknown is anything the dispatcher does not recognize.
type Unknown struct {
	Raw string
}

func (ReplyOK) isLine()      {}
func (ReplyErr) isLine()     {}
func (Greeting) isLine()     {}
func (StatusReport) isLine() {}
func (TempReport) isLine()   {}
func (LevelReport) isLine()  {}
func (Unknown) isLine()      {}

// Classify decodes one trimmed inbound line into its shape. It never
// fails: malformed fields are dropped and a line that matches nothing
// comes back as Unknown.
func Classify(line string) Line {
	line = strings.TrimSpace(line)
	switch {
	case line == "OK":
		return ReplyOK{}
	case strings.HasPrefix(line, "ERR"):
		return parseErr(line)
	case strings.HasPrefix(line, GreetingPrefix):
		payload := ""
		if i := strings.IndexByte(line, ';'); i >= 0 {
			payload = line[i+1:]
		}
		return Greeting{Fields: parseKeyValues(payload, ";")}
	case strings.HasPrefix(line, StatusPrefix):
		return StatusReport{Fields: parseKeyValues(line[len(StatusPrefix):], ";")}
	case strings.HasPrefix(line, tempPrefix):
		return parseTemp(line)
	case strings.HasPrefix(line, levelPrefix):
		return parseLevel(line)
	default:
		return Unknown{Raw: line}
	}
}

func parseErr(line string) ReplyErr {
	switch {
	case strings.HasPrefix(line, "ERR|"):
		parts := strings.SplitN(line, "|", 3)
		e := ReplyErr{Code: "UNKNOWN", Raw: line}
		if len(parts) > 1 {
			e.Code = parts[1]
		}
		if len(parts) > 2 {
			e.Message = strings.TrimSpace(parts[2])
		}
		return e
	case strings.HasPrefix(line, "ERR:"):
		return ReplyErr{
			Code:    GenericErrCode,
			Message: strings.TrimSpace(line[len("ERR:"):]),
			Raw:     line,
		}
	default:
		return ReplyErr{Code: "UNKNOWN", Message: line, Raw: line}
	}
}

// parseKeyValues splits "k=v<sep>k=v" payloads; entries without '='
// are skipped. Keys are lowercased.
func parseKeyValues(payload, sep string) map[string]string {
	fields := map[string]string{}
	if payload == "" {
		return fields
	}
	for _, entry := range strings.Split(payload, sep) {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return fields
}

func parseTemp(line string) TempReport {
	vals := map[string]string{}
	for _, part := range strings.Split(strings.ReplaceAll(line, "C", ""), "|") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		vals[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return TempReport{Values: vals}
}

func parseLevel(line string) LevelReport {
	tokens := strings.Fields(strings.ReplaceAll(line, "|", " "))
	fields := map[string]string{}
	for _, tok := range tokens {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return LevelReport{Fields: fields}
}

// ParseTemperature turns the device's temperature text into a value.
// It tolerates decimal commas and degree suffixes; placeholders and
// non-finite values come back as nil.
func ParseTemperature(raw string) *float64 {
	text := strings.TrimSpace(raw)
	text = strings.ReplaceAll(text, "°C", "")
	text = strings.ReplaceAll(text, ",", ".")
	text = strings.TrimSpace(text)
	if text == "" || text == "--.-" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// PHFromVoltage maps the probe voltage to pH with the fixed linear
// calibration of the pH sketch, rounded to two decimals.
func PHFromVoltage(volt *float64) *float64 {
	if volt == nil {
		return nil
	}
	ph := 7.0 + (2.5-*volt)/0.18
	ph = math.Round(ph*100) / 100
	return &ph
}

// ParseBoolFlag interprets the device's truthy tokens.
func ParseBoolFlag(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "1", "ON", "TRUE":
		return true
	default:
		return false
	}
}

// LevelIsLow reports whether a level token means the low switch tripped.
func LevelIsLow(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "low", "true":
		return true
	default:
		return false
	}
}
