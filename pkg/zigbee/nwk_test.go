package zigbee

import "testing"

func TestDecodeNWKCommandRouteRequest(t *testing.T) {
	f := NewFrame()
	decodeNWKCommand(f, []byte{0x01, 0x08, 0x02, 0xFC, 0xFF, 0x00})

	if f.ErrorMsg != "" {
		t.Fatalf("unexpected error: %s", f.ErrorMsg)
	}
	assertField(t, f, "nwk_cmd_id", "0x01: NWK Route Request")
	assertField(t, f, "nwk_routerequest_mto", "0b01: Many-to-One Route Request with Route Record support")
	assertField(t, f, "nwk_routerequest_id", "2")
	assertField(t, f, "nwk_routerequest_destaddr", "0xfffc")
	assertField(t, f, "nwk_routerequest_pathcost", "0")
}

func TestDecodeNWKTooShort(t *testing.T) {
	f := NewFrame()
	out := DecodeNWK(f, []byte{0x00, 0x00, 0x00}, nil)
	if out != nil {
		t.Fatalf("expected nil payload, got %x", out)
	}
	if f.ErrorMsg != ErrInvalidLength {
		t.Fatalf("expected %q, got %q", ErrInvalidLength, f.ErrorMsg)
	}
}

func TestDecodeNWKUnencryptedDataPassesThrough(t *testing.T) {
	// Frame control: frametype=Data(0b00), protocolversion=2, everything
	// else clear (no security, no extended addressing, no source route).
	fc := uint16(0b00) | (2 << 2)
	payload := []byte{
		byte(fc), byte(fc >> 8),
		0xFC, 0xFF, // dst short
		0x00, 0x00, // src short
		0x1E,       // radius
		0xA1,       // seqnum
		0xDE, 0xAD, // trailing APS bytes to hand upward
	}
	f := NewFrame()
	rest := DecodeNWK(f, payload, nil)

	if f.ErrorMsg != "" {
		t.Fatalf("unexpected error: %s", f.ErrorMsg)
	}
	if string(rest) != string([]byte{0xDE, 0xAD}) {
		t.Fatalf("expected trailing bytes to pass through, got %x", rest)
	}
	assertField(t, f, "nwk_frametype", "0b00: NWK Data")
	assertField(t, f, "nwk_security", "0b0: NWK Security Disabled")
}

func TestDecodeNWKSecuredWithoutMatchingKeyWarns(t *testing.T) {
	ring := keyringWithNetworkKey(t, "22222222222222222222222222222222")
	sec := NewSecurityStage(ring, false)

	// Frame control: frametype=Data, security bit set, extended-nonce clear,
	// no other flags.
	fc := uint16(0b00) | (2 << 2) | (1 << 9)
	payload := []byte{
		byte(fc), byte(fc >> 8),
		0xFC, 0xFF, // dst short
		0x00, 0x00, // src short
		0x1E, // radius
		0xA1, // seqnum
	}
	// Auxiliary security header: security control (level=5, keytype=Network
	// Key, ext-nonce clear), frame counter, key sequence number, then a
	// short ciphertext+MIC blob that can never verify against any key since
	// there is no matching plaintext/tag relationship here.
	secControl := byte(0x05) | (0x01 << 3)
	payload = append(payload, secControl)
	payload = append(payload, 0x01, 0x00, 0x00, 0x00) // frame counter
	payload = append(payload, 0x00)                   // key sequence number
	payload = append(payload, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22)

	f := NewFrame()
	f.Set("mac_srcextendedaddr", "0x7777770000000001")
	rest := DecodeNWK(f, payload, sec)

	if rest != nil {
		t.Fatalf("expected nil payload on undecryptable frame, got %x", rest)
	}
	if f.WarningMsg != WarnUndecryptableNWK {
		t.Fatalf("expected %q, got %q", WarnUndecryptableNWK, f.WarningMsg)
	}
}
