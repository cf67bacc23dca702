package zigbee

import "fmt"

var nwkCommandIDs = map[uint64]string{
	0x01: "NWK Route Request",
	0x02: "NWK Route Reply",
	0x03: "NWK Network Status",
	0x04: "NWK Leave",
	0x05: "NWK Route Record",
	0x06: "NWK Rejoin Request",
	0x07: "NWK Rejoin Response",
	0x08: "NWK Link Status",
	0x09: "NWK Network Report",
	0x0A: "NWK Network Update",
	0x0B: "NWK End Device Timeout Request",
	0x0C: "NWK End Device Timeout Response",
}

var nwkMTOModes = map[uint64]string{
	0b00: "Not a Many-to-One Route Request",
	0b01: "Many-to-One Route Request with Route Record support",
	0b10: "Many-to-One Route Request without Route Record support",
}

var nwkNetStatusCodes = map[uint64]string{
	0x00: "No route available",
	0x01: "Tree link failure",
	0x02: "Non-tree link failure",
	0x03: "Low battery level",
	0x04: "No routing capacity",
	0x05: "No indirect capacity",
	0x06: "Indirect transaction expiry",
	0x07: "Target device unavailable",
	0x08: "Target address unallocated",
	0x09: "Parent link failure",
	0x0A: "Validate route",
	0x0B: "Source route failure",
	0x0C: "Many-to-one route failure",
	0x0D: "Address conflict",
	0x0E: "Verify addresses",
	0x0F: "PAN identifier update",
	0x10: "Network address update",
	0x11: "Bad frame counter",
	0x12: "Bad key sequence number",
}

func decodeNWKCommand(f *Frame, payload []byte) {
	r := newReader(payload)
	cmdID, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return
	}
	label := hexLookup(uint64(cmdID), 2, nwkCommandIDs)
	if label == "" {
		f.SetError(unknownState("nwk_cmd_id"))
		return
	}
	f.Set("nwk_cmd_id", label)

	switch cmdID {
	case 0x01: // Route Request
		options, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		mto := uint64(options>>3) & 0x3
		mtoLabel, ok := nwkMTOModes[mto]
		if !ok {
			f.SetError(unknownState("nwk_routerequest_mto"))
			return
		}
		f.Set("nwk_routerequest_mto", renderBits(mto, 2, mtoLabel))
		f.Set("nwk_routerequest_ed", boolLabel(options&0x40 != 0, "Extended destination included", "No extended destination"))
		f.Set("nwk_routerequest_mc", boolLabel(options&0x80 != 0, "Multicast route request", "Unicast route request"))

		reqID, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		destAddr, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		pathCost, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_routerequest_id", fmt.Sprintf("%d", reqID))
		f.Set("nwk_routerequest_destaddr", fmt.Sprintf("0x%04x", destAddr))
		f.Set("nwk_routerequest_pathcost", fmt.Sprintf("%d", pathCost))

	case 0x02: // Route Reply
		options, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_routereply_eo", boolLabel(options&0x20 != 0, "Extended originator included", "No extended originator"))
		f.Set("nwk_routereply_mc", boolLabel(options&0x80 != 0, "Multicast route reply", "Unicast route reply"))

		reqID, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		origAddr, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		respAddr, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		pathCost, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_routereply_id", fmt.Sprintf("%d", reqID))
		f.Set("nwk_routereply_origaddr", fmt.Sprintf("0x%04x", origAddr))
		f.Set("nwk_routereply_respaddr", fmt.Sprintf("0x%04x", respAddr))
		f.Set("nwk_routereply_pathcost", fmt.Sprintf("%d", pathCost))

	case 0x03: // Network Status
		code, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		codeLabel, ok := nwkNetStatusCodes[uint64(code)]
		if !ok {
			f.SetError(unknownState("nwk_netstatus_code"))
			return
		}
		dstAddr, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_netstatus_code", renderHex(uint64(code), 2, codeLabel))
		f.Set("nwk_netstatus_dstaddr", fmt.Sprintf("0x%04x", dstAddr))

	case 0x04: // Leave
		options, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_leave_rejoin", boolLabel(options&0x20 != 0, "Rejoin after leaving", "No rejoin"))
		f.Set("nwk_leave_request", boolLabel(options&0x40 != 0, "Requested to leave", "Leaving voluntarily"))
		f.Set("nwk_leave_removechildren", boolLabel(options&0x80 != 0, "Remove children", "Do not remove children"))

	case 0x05: // Route Record
		relayCount, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		relayList, ok := r.bytes(int(relayCount) * 2)
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_rtrec_relaycount", fmt.Sprintf("%d", relayCount))
		f.Set("nwk_rtrec_relaylist", fmt.Sprintf("0x%x", relayList))

	case 0x06: // Rejoin Request
		cap, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_rejoinreq_apc", boolLabel(cap&0x01 != 0, "Alternate PAN coordinator", "Not an alternate PAN coordinator"))
		f.Set("nwk_rejoinreq_devtype", boolLabel(cap&0x02 != 0, "Full-function device", "Reduced-function device"))
		f.Set("nwk_rejoinreq_powsrc", boolLabel(cap&0x04 != 0, "AC/mains powered", "Not AC/mains powered"))
		f.Set("nwk_rejoinreq_rxonidle", boolLabel(cap&0x08 != 0, "Receiver on when idle", "Receiver off when idle"))
		f.Set("nwk_rejoinreq_seccap", boolLabel(cap&0x40 != 0, "Security capable", "Not security capable"))
		f.Set("nwk_rejoinreq_allocaddr", boolLabel(cap&0x80 != 0, "Allocate short address", "Do not allocate short address"))

	case 0x07: // Rejoin Response
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
		f.Set("nwk_rejoinrsp_shortaddr", fmt.Sprintf("0x%04x", shortAddr))
		f.Set("nwk_rejoinrsp_status", fmt.Sprintf("%d", status))

	case 0x08: // Link Status
		options, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		count := options & 0x1F
		f.Set("nwk_linkstatus_count", fmt.Sprintf("%d", count))
		f.Set("nwk_linkstatus_first", boolLabel(options&0x20 != 0, "First frame", "Not first frame"))
		f.Set("nwk_linkstatus_last", boolLabel(options&0x40 != 0, "Last frame", "Not last frame"))
		entries, ok := r.bytes(int(count) * 3)
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_linkstatus_entries", fmt.Sprintf("0x%x", entries))

	case 0x09: // Network Report
		options, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		reportType := options & 0x1F
		epid, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		info := r.rest()
		f.Set("nwk_netreport_type", fmt.Sprintf("%d", reportType))
		f.Set("nwk_netreport_epid", fmt.Sprintf("0x%016x", epid))
		f.Set("nwk_netreport_info", fmt.Sprintf("0x%x", info))

	case 0x0A: // Network Update
		options, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		updateType := options & 0x1F
		epid, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		info := r.rest()
		f.Set("nwk_netupdate_type", fmt.Sprintf("%d", updateType))
		f.Set("nwk_netupdate_epid", fmt.Sprintf("0x%016x", epid))
		f.Set("nwk_netupdate_info", fmt.Sprintf("0x%x", info))

	case 0x0B: // End Device Timeout Request
		reqTimeout, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		edConf, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_edtimeoutreq_reqtime", fmt.Sprintf("%d", reqTimeout))
		f.Set("nwk_edtimeoutreq_edconf", fmt.Sprintf("%d", edConf))

	case 0x0C: // End Device Timeout Response
		status, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		poll, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return
		}
		f.Set("nwk_edtimeoutrsp_status", fmt.Sprintf("%d", status))
		f.Set("nwk_edtimeoutrsp_poll", fmt.Sprintf("%d", poll))
	}
}
