// Package telemetry implements the robot serial protocol: line
// classification, per-device state accumulation, status derivation, and the
// program replay model.
//
// The receiver relays newline-terminated, space-separated lines:
//
//	<deviceId> <voltage>                  battery report
//	<deviceId> <PLAY|TEST> [command ...]  button press with the loaded program
//
// Anything else goes through a best-effort legacy parse kept for older
// receiver firmware.
package telemetry

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind tags a parsed event.
type Kind int

const (
	KindBattery Kind = iota
	KindButton
	KindLegacy
)

// maxDeviceIDLen guards against misframed or garbage lines being promoted
// to phantom devices: if the first token is longer than this, the whole
// line is dropped.
const maxDeviceIDLen = 10

// Event is one successfully parsed line. Exactly one of the per-kind field
// groups is meaningful, selected by Kind.
type Event struct {
	Kind      Kind
	DeviceID  string
	Raw       string
	Timestamp time.Time

	// KindBattery
	Voltage float64

	// KindButton
	Button  string
	Program string // remaining tokens joined by single spaces, may be empty

	// KindLegacy
	Fields map[string]string
}

var (
	longHexPattern   = regexp.MustCompile(`[0-9A-Fa-f]{8,}`)
	devicePattern    = regexp.MustCompile(`(?i)(?:device|id)[:\s]*([0-9A-Fa-f]+)`)
	shortHexPattern  = regexp.MustCompile(`[0-9A-Fa-f]{4,}`)
	nonAlnumPattern  = regexp.MustCompile(`[^0-9A-Za-z]`)
	legacySplit      = regexp.MustCompile(`[,\s]+`)
	legacyHexInToken = regexp.MustCompile(`[0-9A-Fa-f]{4,}`)
)

// Parse classifies one raw line. It returns ok=false for blank lines, lines
// with fewer than two tokens, and lines whose first token exceeds the device
// id limit; such lines produce no event and must not touch the registry.
func Parse(raw string, now time.Time) (Event, bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Event{}, false
	}

	parts := strings.Split(line, " ")
	if len(parts) < 2 {
		return Event{}, false
	}

	deviceID := parts[0]
	if len(deviceID) > maxDeviceIDLen {
		return Event{}, false
	}

	// Battery report: exactly two tokens, second is numeric.
	if len(parts) == 2 {
		if voltage, err := strconv.ParseFloat(parts[1], 64); err == nil {
			return Event{
				Kind:      KindBattery,
				DeviceID:  deviceID,
				Raw:       line,
				Timestamp: now,
				Voltage:   voltage,
			}, true
		}
	}

	// Button press: second token names the button, the rest is the program.
	if parts[1] == "PLAY" || parts[1] == "TEST" {
		return Event{
			Kind:      KindButton,
			DeviceID:  deviceID,
			Raw:       line,
			Timestamp: now,
			Button:    parts[1],
			Program:   strings.Join(parts[2:], " "),
		}, true
	}

	return Event{
		Kind:      KindLegacy,
		DeviceID:  extractDeviceID(line),
		Raw:       line,
		Timestamp: now,
		Fields:    parseLegacyFields(line),
	}, true
}

// DeviceIDForLine returns the device a raw log line belongs to, resolved
// the same way Parse resolves it. Rejected lines fall back to the legacy
// extraction so the per-robot log filter still finds them.
func DeviceIDForLine(raw string) string {
	line := strings.TrimSpace(raw)
	if line == "" {
		return ""
	}
	if ev, ok := Parse(line, time.Time{}); ok {
		return ev.DeviceID
	}
	return extractDeviceID(line)
}

// extractDeviceID pulls a device identity out of an unrecognized line, by
// preference: a hex run of 8+ chars, a device:/id:-prefixed hex value, any
// hex run of 4+ chars, else a synthetic id from the line's first characters.
func extractDeviceID(line string) string {
	if m := longHexPattern.FindString(line); m != "" {
		return strings.ToUpper(m)
	}
	if m := devicePattern.FindStringSubmatch(line); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := shortHexPattern.FindString(line); m != "" {
		return strings.ToUpper(m)
	}

	prefix := line
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "UNKNOWN_" + nonAlnumPattern.ReplaceAllString(prefix, "")
}

// parseLegacyFields does a loose key=value / key:value / positional parse of
// an unrecognized line into an open payload map.
func parseLegacyFields(line string) map[string]string {
	fields := make(map[string]string)

	for i, part := range legacySplit.Split(line, -1) {
		if part == "" {
			continue
		}
		switch {
		case strings.Contains(part, "="):
			kv := strings.SplitN(part, "=", 2)
			fields[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		case strings.Contains(part, ":"):
			kv := strings.SplitN(part, ":", 2)
			fields[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		case i == 0 && !legacyHexInToken.MatchString(part):
			// Leading token that isn't an id is likely a command name.
			fields["command"] = part
		default:
			if _, err := strconv.ParseFloat(part, 64); err == nil {
				fields["value"+strconv.Itoa(i)] = part
			}
		}
	}

	return fields
}
