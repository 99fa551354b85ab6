package device

import (
	"fmt"
	"strings"
)

const sigBaseSuffix = "00001000800000805f9b34fb"

// Casing is the identifier casing convention a platform's BLE stack expects
type Casing int

const (
	LowerCase Casing = iota
	UpperCase
)

// PlatformCasing returns the identifier casing for the given GOOS.
// CoreBluetooth reports uppercase identifiers, BlueZ/HCI stacks lowercase.
func PlatformCasing(goos string) Casing {
	switch goos {
	case "darwin", "ios":
		return UpperCase
	default:
		return LowerCase
	}
}

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// It strips a 0x prefix and shortens full 128-bit UUIDs in the Bluetooth SIG
// base format (0000xxxx-0000-1000-8000-00805f9b34fb) to their 16-bit form.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// FormatID is the single place GATT identifiers are canonicalized before being
// used as map keys or compared, so the same characteristic is never tracked
// twice under different spellings.
func FormatID(id string, c Casing) string {
	n := NormalizeUUID(id)
	if c == UpperCase {
		return strings.ToUpper(n)
	}
	return n
}

// ValidateUUID validates that UUID strings are non-empty and hex-only after normalization.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if !isHex(normalized) || (len(normalized) != 4 && len(normalized) != 8 && len(normalized) != 32) {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// BytesToString decodes a characteristic payload as text, one rune per byte
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

// StringToBytes encodes text as a characteristic payload, one byte per rune
func StringToBytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		out = append(out, byte(r))
	}
	return out
}
