package zigbee

import "fmt"

// renderBits formats an enum value as its binary bit pattern plus label,
// e.g. "0b010: MAC Acknowledgment". width is the number of bits the field
// occupies on the wire.
func renderBits(value uint64, width int, label string) string {
	return fmt.Sprintf("0b%0*b: %s", width, value, label)
}

// renderHex formats an enum value as a zero-padded hex byte plus label,
// e.g. "0x07: MAC Beacon Request". hexDigits is the number of hex digits to
// pad to (2 for a one-byte command id, 4 for a two-byte cluster id, etc).
func renderHex(value uint64, hexDigits int, label string) string {
	return fmt.Sprintf("0x%0*x: %s", hexDigits, value, label)
}

// bitLookup resolves a bit-pattern field to its render string, or "" if
// value isn't in the table.
func bitLookup(value uint64, width int, field string, table map[uint64]string) string {
	label, ok := table[value]
	if !ok {
		return ""
	}
	return renderBits(value, width, label)
}

// hexLookup resolves a byte-valued field (e.g. a command id) to its render
// string, or "" if value isn't in the table — callers decide whether a miss
// is fatal (most command ids: yes) or should fall through.
func hexLookup(value uint64, hexDigits int, table map[uint64]string) string {
	label, ok := table[value]
	if !ok {
		return ""
	}
	return renderHex(value, hexDigits, label)
}
