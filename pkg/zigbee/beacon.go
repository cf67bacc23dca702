package zigbee

import "fmt"

// decodeBeacon parses the MAC beacon superframe spec, GTS fields, pending
// address spec, and — when present — the trailing Zigbee beacon payload.
func decodeBeacon(f *Frame, payload []byte) {
	r := newReader(payload)

	superframe, ok := r.u16le()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	f.Set("mac_beacon_sforder", fmt.Sprintf("%d", superframe&0x0F))
	f.Set("mac_beacon_sfsforder", fmt.Sprintf("%d", (superframe>>4)&0x0F))
	f.Set("mac_beacon_finalcap", fmt.Sprintf("%d", (superframe>>8)&0x0F))
	f.Set("mac_beacon_ble", boolLabel((superframe>>12)&1 != 0, "Battery life extension in use", "Battery life extension not in use"))
	f.Set("mac_beacon_pancoord", boolLabel((superframe>>14)&1 != 0, "This is the PAN coordinator", "This is not the PAN coordinator"))
	f.Set("mac_beacon_assocpermit", boolLabel((superframe>>15)&1 != 0, "Association permitted", "Association not permitted"))

	gtsSpec, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	gtsCount := gtsSpec & 0x07
	f.Set("mac_beacon_gtsnum", fmt.Sprintf("%d", gtsCount))
	f.Set("mac_beacon_gtspermit", boolLabel(gtsSpec&0x80 != 0, "GTS permitted", "GTS not permitted"))
	if gtsCount > 0 {
		if _, ok := r.u8(); !ok { // GTS directions mask
			f.SetError(ErrInvalidLength)
			return
		}
		gtsDescriptors, ok := r.bytes(int(gtsCount) * 3)
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("mac_beacon_gtsmask", fmt.Sprintf("0x%x", gtsDescriptors))
	}

	pendingSpec, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	numShort := int(pendingSpec & 0x07)
	numLong := int((pendingSpec >> 4) & 0x07)
	if _, ok := r.bytes(numShort * 2); !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	if _, ok := r.bytes(numLong * 8); !ok {
		f.SetError(ErrInvalidLength)
		return
	}

	if r.remaining() == 0 {
		return
	}

	protocolID, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	f.Set("mac_beacon_protocolid", fmt.Sprintf("%d", protocolID))

	profileVersion, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	f.Set("mac_beacon_stackprofile", fmt.Sprintf("%d", profileVersion&0x0F))
	f.Set("mac_beacon_protocolver", fmt.Sprintf("%d", (profileVersion>>4)&0x0F))

	capacityByte, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	f.Set("mac_beacon_routercap", boolLabel(capacityByte&0x01 != 0, "Accepting join requests as router", "Not accepting join requests as router"))
	f.Set("mac_beacon_devdepth", fmt.Sprintf("%d", (capacityByte>>1)&0x0F))
	f.Set("mac_beacon_edcap", boolLabel(capacityByte&0x20 != 0, "Accepting join requests as end device", "Not accepting join requests as end device"))

	epid, ok := r.u64le()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	f.Set("mac_beacon_epid", fmt.Sprintf("0x%016x", epid))

	txOffset, ok := r.bytes(3)
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	f.Set("mac_beacon_txoffset", fmt.Sprintf("0x%02x%02x%02x", txOffset[2], txOffset[1], txOffset[0]))

	updateID, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	f.Set("mac_beacon_updateid", fmt.Sprintf("%d", updateID))
}
