package zigbee

import "fmt"

var macFrameTypes = map[uint64]string{
	0b000: "MAC Beacon",
	0b001: "MAC Data",
	0b010: "MAC Acknowledgment",
	0b011: "MAC Command",
}

var macAddrModes = map[uint64]string{
	0b00: "No address present",
	0b10: "16-bit short address",
	0b11: "64-bit extended address",
}

// macFCS computes the IEEE 802.15.4 frame check sequence over data: a
// reflected CRC-16 with polynomial 0x1021 (0x8408 reflected), initial value
// 0x0000, and no final XOR. Distinct from zbcrypto.CRC16X25 (which is
// CRC-16/X.25, used only for install-code validation and initialized to
// 0xFFFF with a final XOR) — the two checksums share a polynomial but
// nothing else.
func macFCS(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// DecodeMAC parses the IEEE 802.15.4 MAC layer of raw into f. It returns the
// undecoded tail of raw (the MAC payload, sans FCS) for Data and
// Acknowledgment frames decoded without a terminal error, and nil for
// Command and Beacon frames (whose payload it decodes itself) or once
// f.ErrorMsg is set.
func DecodeMAC(f *Frame, raw []byte) []byte {
	f.Set("phy_length", fmt.Sprintf("%d", len(raw)))

	if len(raw) < 2 {
		f.SetError(ErrNoMACFields)
		return nil
	}

	r := newReader(raw)
	fc, _ := r.u16le()

	frameType := uint64(fc) & 0x7
	security := (fc >> 3) & 1
	framePending := (fc >> 4) & 1
	ackReq := (fc >> 5) & 1
	panIDComp := (fc >> 6) & 1
	dstAddrMode := uint64(fc>>10) & 0x3
	frameVersion := (fc >> 12) & 0x3
	srcAddrMode := uint64(fc>>14) & 0x3

	frameTypeStr := bitLookup(frameType, 3, "mac_frametype", macFrameTypes)
	if frameTypeStr == "" {
		f.SetError(unknownState("mac_frametype"))
		return nil
	}
	f.Set("mac_frametype", frameTypeStr)
	f.Set("mac_security", renderBits(uint64(security), 1, boolLabel(security == 1, "MAC Security Enabled", "MAC Security Disabled")))
	f.Set("mac_framepending", renderBits(uint64(framePending), 1, boolLabel(framePending == 1, "More data", "No more data")))
	f.Set("mac_ackreq", renderBits(uint64(ackReq), 1, boolLabel(ackReq == 1, "Acknowledgment requested", "No acknowledgment requested")))
	f.Set("mac_panidcomp", renderBits(uint64(panIDComp), 1, boolLabel(panIDComp == 1, "PAN ID compression", "No PAN ID compression")))

	dstAddrModeStr, ok := macAddrModes[dstAddrMode]
	if !ok {
		f.SetError(unknownState("mac_dstaddrmode"))
		return nil
	}
	f.Set("mac_dstaddrmode", renderBits(dstAddrMode, 2, dstAddrModeStr))
	f.Set("mac_frameversion", renderBits(uint64(frameVersion), 2, fmt.Sprintf("IEEE 802.15.4-%s", frameVersionYear(frameVersion))))

	srcAddrModeStr, ok := macAddrModes[srcAddrMode]
	if !ok {
		f.SetError(unknownState("mac_srcaddrmode"))
		return nil
	}
	f.Set("mac_srcaddrmode", renderBits(srcAddrMode, 2, srcAddrModeStr))

	seq, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return nil
	}
	f.Set("mac_seqnum", fmt.Sprintf("%d", seq))

	var dstPANID uint16
	var haveDstPANID bool
	if dstAddrMode != 0b00 {
		v, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		dstPANID = v
		haveDstPANID = true
		f.Set("mac_dstpanid", fmt.Sprintf("0x%04x", dstPANID))
	}

	switch dstAddrMode {
	case 0b10:
		v, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("mac_dstshortaddr", fmt.Sprintf("0x%04x", v))
	case 0b11:
		v, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("mac_dstextendedaddr", fmt.Sprintf("0x%016x", v))
	}

	if srcAddrMode != 0b00 {
		if panIDComp == 1 && haveDstPANID {
			f.Set("mac_srcpanid", fmt.Sprintf("0x%04x", dstPANID))
		} else {
			v, ok := r.u16le()
			if !ok {
				f.SetError(ErrInvalidLength)
				return nil
			}
			f.Set("mac_srcpanid", fmt.Sprintf("0x%04x", v))
		}
	}

	switch srcAddrMode {
	case 0b10:
		v, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("mac_srcshortaddr", fmt.Sprintf("0x%04x", v))
	case 0b11:
		v, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("mac_srcextendedaddr", fmt.Sprintf("0x%016x", v))
	}

	// The final two octets of the raw frame are the FCS; everything between
	// the addressing fields just consumed and those two trailing octets is
	// the MAC payload.
	if len(raw) < 2 {
		f.SetError(ErrInvalidLength)
		return nil
	}
	fcsBytes := raw[len(raw)-2:]
	f.Set("mac_fcs", fmt.Sprintf("0x%02x%02x", fcsBytes[1], fcsBytes[0]))

	payloadEnd := len(raw) - 2
	if r.pos > payloadEnd {
		f.SetError(ErrInvalidLength)
		return nil
	}
	transmitted := uint16(fcsBytes[0]) | uint16(fcsBytes[1])<<8
	computed := macFCS(raw[:payloadEnd])
	if computed != transmitted {
		f.SetError(ErrFCSMismatch)
		return nil
	}

	payload := raw[r.pos:payloadEnd]

	if frameType == 0b011 {
		decodeMACCommand(f, payload, uint64(security))
		return nil
	}
	if frameType == 0b000 {
		decodeBeacon(f, payload)
		return nil
	}
	if len(payload) > 0 && frameType == 0b001 {
		// NWK decoding continues from here; handled by the caller (record
		// builder), which owns the boundary between MAC and NWK layers.
		return payload
	}
	return payload
}

func boolLabel(v bool, ifTrue, ifFalse string) string {
	if v {
		return ifTrue
	}
	return ifFalse
}

func frameVersionYear(v uint16) string {
	switch v {
	case 0:
		return "2003"
	case 1:
		return "2006"
	case 2:
		return "2015"
	default:
		return "Reserved"
	}
}
