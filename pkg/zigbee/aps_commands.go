package zigbee

import "fmt"

var apsCommandIDs = map[uint64]string{
	0x05: "APS Transport Key",
	0x06: "APS Update Device",
	0x07: "APS Remove Device",
	0x08: "APS Request Key",
	0x09: "APS Switch Key",
	0x0E: "APS Tunnel",
	0x0F: "APS Verify Key",
	0x10: "APS Confirm Key",
}

var apsTransportKeyTypes = map[uint64]string{
	0x01: "Network Key",
	0x03: "Application Link Key",
	0x04: "Trust Center Link Key",
}

var apsRequestKeyTypes = map[uint64]string{
	0x02: "Application Link Key",
	0x04: "Trust Center Link Key",
}

var apsUpdateDeviceStatus = map[uint64]string{
	0x00: "Standard device secured rejoin",
	0x01: "Standard device unsecured join",
	0x02: "Device left",
	0x03: "Standard device trust center rejoin",
}

var apsConfirmKeyStatus = map[uint64]string{
	0x00: "Success",
}

// decodeAPSCommand dispatches one APS command frame's payload into f. The
// Tunnel command re-enters DecodeAPS on the tunneled frame, so this function
// takes no security stage of its own: a tunneled APS frame carries its own
// auxiliary header and is decoded without decryption, matching how the
// trust center forwards a tunnel without needing the end device's key.
func decodeAPSCommand(f *Frame, payload []byte) {
	r := newReader(payload)
	cmdID, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	label := hexLookup(uint64(cmdID), 2, apsCommandIDs)
	if label == "" {
		f.SetError(unknownState("aps_cmd_id"))
		return
	}
	f.Set("aps_cmd_id", label)

	switch cmdID {
	case 0x05: // Transport Key
		keyType, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		typeLabel, ok := apsTransportKeyTypes[uint64(keyType)]
		if !ok {
			f.SetError(unknownState("aps_transportkey_type"))
			return
		}
		f.Set("aps_transportkey_type", renderHex(uint64(keyType), 2, typeLabel))

		key, ok := r.bytes(16)
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("aps_transportkey_key", fmt.Sprintf("0x%x", key))

		if keyType == 0x01 { // Network Key
			seqNum, ok := r.u8()
			if !ok {
				f.SetError(ErrInvalidLength)
				return
			}
			destAddr, ok := r.u64le()
			if !ok {
				f.SetError(ErrInvalidLength)
				return
			}
			srcAddr, ok := r.u64le()
			if !ok {
				f.SetError(ErrInvalidLength)
				return
			}
			f.Set("aps_transportkey_seqnum", fmt.Sprintf("%d", seqNum))
			f.Set("aps_transportkey_destaddr", fmt.Sprintf("0x%016x", destAddr))
			f.Set("aps_transportkey_srcaddr", fmt.Sprintf("0x%016x", srcAddr))
		} else {
			destAddr, ok := r.u64le()
			if !ok {
				f.SetError(ErrInvalidLength)
				return
			}
			srcAddr, ok := r.u64le()
			if !ok {
				f.SetError(ErrInvalidLength)
				return
			}
			f.Set("aps_transportkey_destaddr", fmt.Sprintf("0x%016x", destAddr))
			f.Set("aps_transportkey_srcaddr", fmt.Sprintf("0x%016x", srcAddr))
		}

	case 0x06: // Update Device
		addr, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		shortAddr, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		status, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		statusLabel, ok := apsUpdateDeviceStatus[uint64(status)]
		if !ok {
			f.SetError(unknownState("aps_updatedevice_status"))
			return
		}
		f.Set("aps_updatedevice_addr", fmt.Sprintf("0x%016x", addr))
		f.Set("aps_updatedevice_shortaddr", fmt.Sprintf("0x%04x", shortAddr))
		f.Set("aps_updatedevice_status", renderHex(uint64(status), 2, statusLabel))

	case 0x07: // Remove Device
		addr, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("aps_removedevice_addr", fmt.Sprintf("0x%016x", addr))

	case 0x08: // Request Key
		keyType, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		typeLabel, ok := apsRequestKeyTypes[uint64(keyType)]
		if !ok {
			f.SetError(unknownState("aps_requestkey_type"))
			return
		}
		f.Set("aps_requestkey_type", renderHex(uint64(keyType), 2, typeLabel))
		if keyType == 0x02 { // Application Link Key names a partner address
			addr, ok := r.u64le()
			if !ok {
				f.SetError(ErrInvalidLength)
				return
			}
			f.Set("aps_requestkey_addr", fmt.Sprintf("0x%016x", addr))
		}

	case 0x09: // Switch Key
		seqNum, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("aps_switchkey_seqnum", fmt.Sprintf("%d", seqNum))

	case 0x0E: // Tunnel
		destAddr, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("aps_tunnel_destaddr", fmt.Sprintf("0x%016x", destAddr))

		tunneled := r.rest()
		inner := NewFrame()
		DecodeAPS(inner, tunneled, nil)
		for col, val := range inner.Values() {
			if !f.Has(col) {
				f.Set(col, val)
			}
		}

	case 0x0F: // Verify Key
		keyType, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		addr, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		hash, ok := r.bytes(16)
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("aps_verifykey_type", fmt.Sprintf("%d", keyType))
		f.Set("aps_verifykey_addr", fmt.Sprintf("0x%016x", addr))
		f.Set("aps_verifykey_hash", fmt.Sprintf("0x%x", hash))

	case 0x10: // Confirm Key
		status, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		statusLabel, ok := apsConfirmKeyStatus[uint64(status)]
		if !ok {
			statusLabel = "Failure"
		}
		keyType, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		addr, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("aps_confirmkey_status", renderHex(uint64(status), 2, statusLabel))
		f.Set("aps_confirmkey_type", fmt.Sprintf("%d", keyType))
		f.Set("aps_confirmkey_addr", fmt.Sprintf("0x%016x", addr))
	}
}
