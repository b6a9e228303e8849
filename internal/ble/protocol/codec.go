package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Unit is the temperature unit values are presented in. Payloads on the wire
// are always Celsius centidegrees.
type Unit int

const (
	Celsius Unit = iota
	Fahrenheit
)

// ParseUnit accepts "celsius"/"c" and "fahrenheit"/"f" in any case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "celsius", "c":
		return Celsius, nil
	case "fahrenheit", "f":
		return Fahrenheit, nil
	default:
		return Celsius, fmt.Errorf("protocol: unknown unit %q", s)
	}
}

func (u Unit) String() string {
	if u == Fahrenheit {
		return "fahrenheit"
	}
	return "celsius"
}

// Symbol returns the display suffix for u.
func (u Unit) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// FormatTemperature renders v, already in unit u, with one decimal.
func FormatTemperature(v float64, u Unit) string {
	return fmt.Sprintf("%.1f%s", v, u.Symbol())
}

// EncodingError reports a value that cannot be represented on the wire.
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("protocol: cannot encode %s: %s", e.Field, e.Reason)
}

// DecodeError reports a payload that is too short for its characteristic.
type DecodeError struct {
	Field string
	Want  int
	Got   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: %s payload must be at least %d bytes, got %d", e.Field, e.Want, e.Got)
}

// centidegree scale of the temperature characteristics.
const tempScale = 0.01

// DecodeTemperature interprets a temperature payload (uint16 little-endian,
// 1/100 °C) and returns it in unit u rounded to one decimal place.
func DecodeTemperature(data []byte, u Unit) (float64, error) {
	if len(data) < 2 {
		return 0, &DecodeError{Field: "temperature", Want: 2, Got: len(data)}
	}
	v := float64(binary.LittleEndian.Uint16(data)) * tempScale
	if u == Fahrenheit {
		v = CelsiusToFahrenheit(v)
	}
	return roundTenth(v), nil
}

// EncodeTemperature encodes v, given in unit u, as Celsius centidegrees.
// Fractions of a centidegree are truncated.
func EncodeTemperature(v float64, u Unit) ([]byte, error) {
	centi, err := Centidegrees(v, u)
	if err != nil {
		return nil, err
	}
	return EncodeCentidegrees(centi)
}

// Centidegrees converts v, given in unit u, to whole Celsius centidegrees.
func Centidegrees(v float64, u Unit) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &EncodingError{Field: "temperature", Reason: "not a finite number"}
	}
	if u == Fahrenheit {
		v = FahrenheitToCelsius(v)
	}
	centi := v * 100
	if centi < 0 || centi >= math.MaxUint16+1 {
		return 0, &EncodingError{Field: "temperature", Reason: fmt.Sprintf("%.2f°C outside 0-655.35°C", v)}
	}
	// 1e-6 absorbs representation error such as 0.29*100 = 28.999...
	return int(math.Floor(centi + 1e-6)), nil
}

// EncodeCentidegrees encodes a Celsius centidegree value.
func EncodeCentidegrees(centi int) ([]byte, error) {
	if centi < 0 || centi > math.MaxUint16 {
		return nil, &EncodingError{Field: "temperature", Reason: fmt.Sprintf("%d centidegrees does not fit 16 bits", centi)}
	}
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(centi))
	return buf, nil
}

// CelsiusToFahrenheit converts c to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*1.8 + 32
}

// FahrenheitToCelsius converts f to Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) / 1.8
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// Battery is the decoded battery characteristic.
type Battery struct {
	Percent  float64
	Charging bool
}

// DecodeBattery interprets the battery payload: byte 0 is the charge
// percentage, byte 1 the charging flag.
func DecodeBattery(data []byte) (Battery, error) {
	if len(data) < 2 {
		return Battery{}, &DecodeError{Field: "battery", Want: 2, Got: len(data)}
	}
	return Battery{
		Percent:  float64(data[0]),
		Charging: data[1] != 0,
	}, nil
}

// Color is the LED color as R, G, B, A.
type Color [4]byte

// ParseColor validates that data is exactly four bytes long.
func ParseColor(data []byte) (Color, error) {
	var c Color
	if len(data) != len(c) {
		return c, &EncodingError{Field: "led color", Reason: fmt.Sprintf("want 4 bytes, got %d", len(data))}
	}
	copy(c[:], data)
	return c, nil
}

// Bytes returns the wire form of c.
func (c Color) Bytes() []byte {
	return []byte{c[0], c[1], c[2], c[3]}
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c[0], c[1], c[2], c[3])
}
