package asb

import (
	"fmt"
	"strconv"
)

// Opcodes carried in the first payload byte.
const (
	CmdLegacy         byte = 0x02
	CmdBoot           byte = 0x21
	CmdRequest        byte = 0x40
	CmdPulse          byte = 0x50
	CmdSwitch         byte = 0x51
	CmdPercent        byte = 0x52
	CmdPing           byte = 0x70
	CmdPong           byte = 0x71
	CmdConfigRead     byte = 0x80
	CmdConfigWrite    byte = 0x81
	CmdConfigActivate byte = 0x82
	CmdChangeAddress  byte = 0x85
	CmdTemperature    byte = 0xA0
	CmdHumidity       byte = 0xA1
	CmdPressure       byte = 0xA2
	CmdLux            byte = 0xA5
	CmdUVIndex        byte = 0xA6
	CmdInfrared       byte = 0xA7
	CmdVoltage        byte = 0xC0
	CmdCurrent        byte = 0xC1
	CmdPower          byte = 0xC2
	CmdPercentSensor  byte = 0xD0
	CmdPermille       byte = 0xD1
	CmdPPM            byte = 0xD2
	CmdPerYear        byte = 0xD5
	CmdPerMonth       byte = 0xD6
	CmdPerDay         byte = 0xD7
	CmdPerHour        byte = 0xD8
	CmdPerMinute      byte = 0xD9
	CmdPerSecond      byte = 0xDA
)

// Reading is the numeric value carried by an actuator or sensor message.
type Reading struct {
	// Measurement names the quantity, e.g. "temperature".
	Measurement string

	// Unit is the display unit, empty for plain counts.
	Unit string

	// Value is the scaled value.
	Value float64
}

// Command is the interpretation of one payload.
type Command struct {
	Opcode      byte
	Name        string
	Description string

	// Reading is nil for messages that carry no value.
	Reading *Reading
}

// commandDef describes one opcode.
type commandDef struct {
	name string

	// arity is the minimum payload length including the opcode.
	arity int

	describe func(data []byte, m NumericMode) (string, *Reading)
}

func fixed(text string) func([]byte, NumericMode) (string, *Reading) {
	return func([]byte, NumericMode) (string, *Reading) {
		return text, nil
	}
}

// tenths16 describes a two-byte value scaled by 1/10.
func tenths16(label, measurement, unit string, signed bool) func([]byte, NumericMode) (string, *Reading) {
	return func(d []byte, m NumericMode) (string, *Reading) {
		v := m.unsigned16(d[1], d[2])
		if signed {
			v = m.signed16(d[1], d[2])
		}
		return label + " is " + formatTenths(v) + unit,
			&Reading{Measurement: measurement, Unit: unit, Value: float64(v) / 10}
	}
}

// count16 describes an unscaled two-byte count.
func count16(label, measurement, unit string) func([]byte, NumericMode) (string, *Reading) {
	return func(d []byte, m NumericMode) (string, *Reading) {
		v := m.unsigned16(d[1], d[2])
		return label + " is " + strconv.FormatInt(v, 10) + unit,
			&Reading{Measurement: measurement, Unit: unit, Value: float64(v)}
	}
}

// count32 describes an unscaled four-byte count.
func count32(label, measurement, unit string) func([]byte, NumericMode) (string, *Reading) {
	return func(d []byte, m NumericMode) (string, *Reading) {
		v := m.unsigned32(d[1:5])
		return label + " is " + strconv.FormatInt(v, 10),
			&Reading{Measurement: measurement, Unit: unit, Value: float64(v)}
	}
}

func register(action string) func([]byte, NumericMode) (string, *Reading) {
	return func(d []byte, m NumericMode) (string, *Reading) {
		return fmt.Sprintf("%s 0x%04x", action, m.unsigned16(d[1], d[2])), nil
	}
}

var commands = map[byte]commandDef{
	CmdLegacy:  {name: "legacy", arity: 1, describe: fixed("Legacy 4 Byte Message")},
	CmdBoot:    {name: "boot", arity: 1, describe: fixed("The sending node has just booted")},
	CmdRequest: {name: "request", arity: 1, describe: fixed("The sending node requested the current state of this group")},
	CmdPulse:   {name: "pulse", arity: 1, describe: fixed("0-bit-message")},
	CmdSwitch: {name: "switch", arity: 2, describe: func(d []byte, _ NumericMode) (string, *Reading) {
		return "1-bit-message, state is " + strconv.Itoa(int(d[1])),
			&Reading{Measurement: "switch", Value: float64(d[1])}
	}},
	CmdPercent: {name: "level", arity: 2, describe: func(d []byte, _ NumericMode) (string, *Reading) {
		return "percental Message, state is " + strconv.Itoa(int(d[1])) + "%",
			&Reading{Measurement: "level", Unit: "%", Value: float64(d[1])}
	}},
	CmdPing:           {name: "ping", arity: 1, describe: fixed("PING request")},
	CmdPong:           {name: "pong", arity: 1, describe: fixed("PONG (PING response)")},
	CmdConfigRead:     {name: "config_read", arity: 3, describe: register("Request to read configuration register")},
	CmdConfigActivate: {name: "config_activate", arity: 3, describe: register("Request to activate configuration register")},
	CmdChangeAddress:  {name: "change_address", arity: 3, describe: register("Request to change node-ID to")},
	CmdTemperature:    {name: "temperature", arity: 3, describe: tenths16("Temperature", "temperature", "°C", true)},
	CmdHumidity:       {name: "humidity", arity: 3, describe: tenths16("Humidity", "humidity", "%RH", false)},
	CmdPressure:       {name: "pressure", arity: 3, describe: tenths16("Pressure", "pressure", "hPa", false)},
	CmdLux:            {name: "lux", arity: 5, describe: count32("LUX", "illuminance", "lx")},
	CmdUVIndex:        {name: "uv_index", arity: 3, describe: tenths16("UV-Index", "uv_index", "", false)},
	CmdInfrared:       {name: "infrared", arity: 5, describe: count32("IR", "infrared", "")},
	CmdVoltage:        {name: "voltage", arity: 3, describe: tenths16("Voltage", "voltage", "V", false)},
	CmdCurrent:        {name: "current", arity: 3, describe: tenths16("Ampere", "current", "A", false)},
	CmdPower:          {name: "power", arity: 3, describe: tenths16("Power", "power", "VA", false)},
	CmdPermille:       {name: "permille", arity: 3, describe: count16("permille sensor", "permille", "‰")},
	CmdPPM:            {name: "ppm", arity: 3, describe: count16("parts per million sensor", "ppm", "")},
	CmdPerYear:        {name: "per_year", arity: 3, describe: count16("x per year sensor", "per_year", "")},
	CmdPerMonth:       {name: "per_month", arity: 3, describe: count16("x per month sensor", "per_month", "")},
	CmdPerDay:         {name: "per_day", arity: 3, describe: count16("x per day sensor", "per_day", "")},
	CmdPerHour:        {name: "per_hour", arity: 3, describe: count16("x per hour sensor", "per_hour", "")},
	CmdPerMinute:      {name: "per_minute", arity: 3, describe: count16("x per minute sensor", "per_minute", "")},
	CmdPerSecond:      {name: "per_second", arity: 3, describe: count16("x per second sensor", "per_second", "")},
	CmdConfigWrite: {name: "config_write", arity: 4, describe: func(d []byte, m NumericMode) (string, *Reading) {
		return fmt.Sprintf("Request to write configuration register 0x%04x with value 0x%02x",
			m.unsigned16(d[1], d[2]), d[3]), nil
	}},
	CmdPercentSensor: {name: "percent", arity: 2, describe: func(d []byte, _ NumericMode) (string, *Reading) {
		return "percental sensor is " + strconv.Itoa(int(d[1])) + "%",
			&Reading{Measurement: "percent", Unit: "%", Value: float64(d[1])}
	}},
}

// Describe interprets a payload. It returns false for an empty payload, an
// unknown opcode, or a payload shorter than its opcode requires.
func Describe(payload []byte, mode NumericMode) (Command, bool) {
	if len(payload) == 0 {
		return Command{}, false
	}
	def, ok := commands[payload[0]]
	if !ok || len(payload) < def.arity {
		return Command{}, false
	}

	text, reading := def.describe(payload, mode)
	return Command{
		Opcode:      payload[0],
		Name:        def.name,
		Description: text,
		Reading:     reading,
	}, true
}

// Interpret returns the human-readable description of a payload, or an
// empty string when Describe would return false.
func Interpret(payload []byte, mode NumericMode) string {
	cmd, ok := Describe(payload, mode)
	if !ok {
		return ""
	}
	return cmd.Description
}

// CommandName returns the short name of an opcode, or "" if unknown.
func CommandName(opcode byte) string {
	return commands[opcode].name
}
