// Package protocol implements the payload encoding of the Ember mug's GATT
// characteristics: temperatures, battery state and LED color.
package protocol

import (
	"strings"

	"github.com/google/uuid"
)

// Ember mug characteristic UUIDs.
var (
	CurrentTempUUID = uuid.MustParse("fc540002-236c-4c94-8fa9-944a3e5353fa")
	TargetTempUUID  = uuid.MustParse("fc540003-236c-4c94-8fa9-944a3e5353fa")
	BatteryUUID     = uuid.MustParse("fc540007-236c-4c94-8fa9-944a3e5353fa")
	LEDColorUUID    = uuid.MustParse("fc540014-236c-4c94-8fa9-944a3e5353fa")
)

// Characteristic names a mug characteristic.
type Characteristic string

const (
	CurrentTemp Characteristic = "current_temp"
	TargetTemp  Characteristic = "target_temp"
	CurrentBat  Characteristic = "current_bat"
	LEDColor    Characteristic = "led_color"
)

var characteristicUUIDs = map[Characteristic]uuid.UUID{
	CurrentTemp: CurrentTempUUID,
	TargetTemp:  TargetTempUUID,
	CurrentBat:  BatteryUUID,
	LEDColor:    LEDColorUUID,
}

// UUID returns the canonical (lowercase, dashed) UUID string of c, or "" if c
// is not a mug characteristic.
func (c Characteristic) UUID() string {
	u, ok := characteristicUUIDs[c]
	if !ok {
		return ""
	}
	return u.String()
}

// Characteristics returns the canonical UUIDs a connection must expose for the
// device to be supported.
func Characteristics() []string {
	return []string{
		CurrentTempUUID.String(),
		TargetTempUUID.String(),
		BatteryUUID.String(),
		LEDColorUUID.String(),
	}
}

// NormalizeUUID converts a textual UUID (dashed or bare hex, any case) into
// the canonical form used as lookup key. 16-bit short UUIDs and other strings
// that do not parse are lowercased and returned without dashes.
func NormalizeUUID(s string) string {
	if u, err := uuid.Parse(s); err == nil {
		return u.String()
	}
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}
