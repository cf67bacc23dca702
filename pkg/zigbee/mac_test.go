package zigbee

import "testing"

func TestDecodeMACAckOnly(t *testing.T) {
	raw := []byte{0x02, 0x00, 0x89, 0x71, 0xAC}
	f := NewFrame()
	payload := DecodeMAC(f, raw)

	if f.ErrorMsg != "" {
		t.Fatalf("unexpected error: %s", f.ErrorMsg)
	}
	if len(payload) != 0 {
		t.Fatalf("expected empty payload for an Ack frame, got %x", payload)
	}
	assertField(t, f, "mac_frametype", "0b010: MAC Acknowledgment")
	assertField(t, f, "mac_seqnum", "137")
	assertField(t, f, "mac_fcs", "0xac71")
}

func TestDecodeMACBeaconRequest(t *testing.T) {
	raw := []byte{0x03, 0x08, 0xCB, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x6E, 0x03}
	f := NewFrame()
	DecodeMAC(f, raw)

	if f.ErrorMsg != "" {
		t.Fatalf("unexpected error: %s", f.ErrorMsg)
	}
	assertField(t, f, "mac_cmd_id", "0x07: MAC Beacon Request")
	assertField(t, f, "mac_dstshortaddr", "0xffff")
}

func TestDecodeMACBadLength(t *testing.T) {
	raw := []byte{0x01}
	f := NewFrame()
	DecodeMAC(f, raw)

	if f.ErrorMsg != ErrNoMACFields {
		t.Fatalf("expected %q, got %q", ErrNoMACFields, f.ErrorMsg)
	}
	if len(f.Values()) != 1 {
		t.Fatalf("expected only phy_length to be set, got %v", f.Values())
	}
}

func TestDecodeMACFCSMismatch(t *testing.T) {
	raw := []byte{0x12, 0x00, 0xEA, 0x79, 0x79}
	f := NewFrame()
	DecodeMAC(f, raw)

	if f.ErrorMsg != ErrFCSMismatch {
		t.Fatalf("expected %q, got %q", ErrFCSMismatch, f.ErrorMsg)
	}
}

func TestMACFCSMatchesReferenceVector(t *testing.T) {
	got := macFCS([]byte{0x02, 0x00, 0x89})
	if got != 0xAC71 {
		t.Fatalf("macFCS = 0x%04x, want 0xac71", got)
	}
}

func assertField(t *testing.T, f *Frame, col, want string) {
	t.Helper()
	got, ok := f.Get(col)
	if !ok {
		t.Fatalf("column %q not set", col)
	}
	if got != want {
		t.Fatalf("column %q = %q, want %q", col, got, want)
	}
}
