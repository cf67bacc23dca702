package zigbee

import "fmt"

var macCommandIDs = map[uint64]string{
	0x01: "MAC Association Request",
	0x02: "MAC Association Response",
	0x03: "MAC Disassociation Notification",
	0x04: "MAC Data Request",
	0x05: "MAC PAN ID Conflict Notification",
	0x06: "MAC Orphan Notification",
	0x07: "MAC Beacon Request",
	0x08: "MAC Coordinator Realignment",
	0x09: "MAC GTS Request",
}

var macAssocStatus = map[uint64]string{
	0x00: "Association successful",
	0x01: "PAN at capacity",
	0x02: "PAN access denied",
}

var macDisassocReasons = map[uint64]string{
	0x01: "The coordinator wishes the device to leave the PAN",
	0x02: "The device wishes to leave the PAN",
}

func decodeMACCommand(f *Frame, payload []byte, security uint64) {
	if security == 1 {
		// MAC-layer security on command frames is out of scope here; the
		// payload is opaque ciphertext this decoder has no aux header for.
		f.Set("mac_cmd_id", "")
		return
	}

	r := newReader(payload)
	cmdID, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}

	label := hexLookup(uint64(cmdID), 2, macCommandIDs)
	if label == "" {
		f.SetError(unknownState("mac_cmd_id"))
		return
	}
	f.Set("mac_cmd_id", label)

	switch cmdID {
	case 0x01: // Association Request
		cap, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("mac_assocreq_apc", boolLabel(cap&0x01 != 0, "Alternate PAN coordinator", "Not an alternate PAN coordinator"))
		f.Set("mac_assocreq_devtype", boolLabel(cap&0x02 != 0, "Full-function device", "Reduced-function device"))
		f.Set("mac_assocreq_powsrc", boolLabel(cap&0x04 != 0, "AC/mains powered", "Not AC/mains powered"))
		f.Set("mac_assocreq_rxonidle", boolLabel(cap&0x08 != 0, "Receiver on when idle", "Receiver off when idle"))
		f.Set("mac_assocreq_seccap", boolLabel(cap&0x40 != 0, "Security capable", "Not security capable"))
		f.Set("mac_assocreq_allocaddr", boolLabel(cap&0x80 != 0, "Allocate short address", "Do not allocate short address"))

	case 0x02: // Association Response
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
		f.Set("mac_assocrsp_shortaddr", fmt.Sprintf("0x%04x", shortAddr))
		statusLabel, ok := macAssocStatus[uint64(status)]
		if !ok {
			f.SetError(unknownState("mac_assocrsp_status"))
			return
		}
		f.Set("mac_assocrsp_status", renderHex(uint64(status), 2, statusLabel))

	case 0x03: // Disassociation Notification
		reason, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		label, ok := macDisassocReasons[uint64(reason)]
		if !ok {
			f.SetError(unknownState("mac_disassoc_reason"))
			return
		}
		f.Set("mac_disassoc_reason", renderHex(uint64(reason), 2, label))

	case 0x04, 0x05, 0x06, 0x07:
		// Data Request, PAN ID Conflict Notification, Orphan Notification,
		// and Beacon Request all carry no command payload.

	case 0x08: // Coordinator Realignment
		panID, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		coordAddr, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		channel, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		shortAddr, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("mac_realign_panid", fmt.Sprintf("0x%04x", panID))
		f.Set("mac_realign_coordaddr", fmt.Sprintf("0x%04x", coordAddr))
		f.Set("mac_realign_channel", fmt.Sprintf("%d", channel))
		f.Set("mac_realign_shortaddr", fmt.Sprintf("0x%04x", shortAddr))
		if page, ok := r.u8(); ok {
			f.Set("mac_realign_channelpage", fmt.Sprintf("%d", page))
		}

	case 0x09: // GTS Request
		characteristics, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("mac_gtsreq_length", fmt.Sprintf("%d", characteristics&0x1F))
		f.Set("mac_gtsreq_dir", boolLabel(characteristics&0x20 != 0, "Receive GTS", "Transmit GTS"))
		f.Set("mac_gtsreq_chartype", boolLabel(characteristics&0x40 != 0, "GTS allocation", "GTS deallocation"))
	}
}
