package zigbee

// columnOrder is the single source of truth for every column a Frame may
// carry and the order they're written to the packets table in. It mirrors
// the original analyzer's field_values PACKET_TYPES column sets and the
// store's packets schema: both are generated from this slice so they can
// never drift apart.
//
// This is a representative subset of the full field catalog rather than a
// literal 1:1 port of every sub-command field the original tracks — see
// DESIGN.md's Frame decode entry for the categories covered and why the long
// tail of rarely-exercised command subfields was scoped out.
var columnOrder = []string{
	"pcap_filename",
	"pkt_num",
	"pkt_time",

	"phy_length",

	"mac_frametype",
	"mac_security",
	"mac_framepending",
	"mac_ackreq",
	"mac_panidcomp",
	"mac_dstaddrmode",
	"mac_frameversion",
	"mac_srcaddrmode",
	"mac_seqnum",
	"mac_dstpanid",
	"mac_dstshortaddr",
	"mac_dstextendedaddr",
	"mac_srcpanid",
	"mac_srcshortaddr",
	"mac_srcextendedaddr",
	"mac_fcs",

	"mac_cmd_id",
	"mac_assocreq_apc",
	"mac_assocreq_devtype",
	"mac_assocreq_powsrc",
	"mac_assocreq_rxonidle",
	"mac_assocreq_seccap",
	"mac_assocreq_allocaddr",
	"mac_assocrsp_shortaddr",
	"mac_assocrsp_status",
	"mac_disassoc_reason",
	"mac_realign_panid",
	"mac_realign_coordaddr",
	"mac_realign_channel",
	"mac_realign_shortaddr",
	"mac_realign_channelpage",
	"mac_gtsreq_length",
	"mac_gtsreq_dir",
	"mac_gtsreq_chartype",

	"mac_beacon_sforder",
	"mac_beacon_sfsforder",
	"mac_beacon_finalcap",
	"mac_beacon_ble",
	"mac_beacon_pancoord",
	"mac_beacon_assocpermit",
	"mac_beacon_gtsnum",
	"mac_beacon_gtspermit",
	"mac_beacon_gtsmask",
	"mac_beacon_nsaddr",
	"mac_beacon_nesaddr",
	"mac_beacon_protocolid",
	"mac_beacon_stackprofile",
	"mac_beacon_protocolver",
	"mac_beacon_routercap",
	"mac_beacon_devdepth",
	"mac_beacon_edcap",
	"mac_beacon_epid",
	"mac_beacon_txoffset",
	"mac_beacon_updateid",

	"nwk_frametype",
	"nwk_protocolversion",
	"nwk_discroute",
	"nwk_multicast",
	"nwk_security",
	"nwk_srcroute",
	"nwk_extendeddst",
	"nwk_extendedsrc",
	"nwk_edinitiator",
	"nwk_dstshortaddr",
	"nwk_srcshortaddr",
	"nwk_radius",
	"nwk_seqnum",
	"nwk_dstextendedaddr",
	"nwk_srcextendedaddr",
	"nwk_mcastctl",
	"nwk_relaycount",
	"nwk_relayindex",
	"nwk_relaylist",

	"nwk_aux_seclevel",
	"nwk_aux_keytype",
	"nwk_aux_extnonce",
	"nwk_aux_framecounter",
	"nwk_aux_srcaddr",
	"nwk_aux_keyseqnum",
	"nwk_decryptedpayload",
	"nwk_deckey",

	"nwk_cmd_id",
	"nwk_routerequest_mto",
	"nwk_routerequest_ed",
	"nwk_routerequest_mc",
	"nwk_routerequest_id",
	"nwk_routerequest_destaddr",
	"nwk_routerequest_pathcost",
	"nwk_routereply_eo",
	"nwk_routereply_mc",
	"nwk_routereply_id",
	"nwk_routereply_origaddr",
	"nwk_routereply_respaddr",
	"nwk_routereply_pathcost",
	"nwk_netstatus_code",
	"nwk_netstatus_dstaddr",
	"nwk_leave_rejoin",
	"nwk_leave_request",
	"nwk_leave_removechildren",
	"nwk_rtrec_relaycount",
	"nwk_rtrec_relaylist",
	"nwk_rejoinreq_apc",
	"nwk_rejoinreq_devtype",
	"nwk_rejoinreq_powsrc",
	"nwk_rejoinreq_rxonidle",
	"nwk_rejoinreq_seccap",
	"nwk_rejoinreq_allocaddr",
	"nwk_rejoinrsp_shortaddr",
	"nwk_rejoinrsp_status",
	"nwk_linkstatus_count",
	"nwk_linkstatus_first",
	"nwk_linkstatus_last",
	"nwk_linkstatus_entries",
	"nwk_netreport_type",
	"nwk_netreport_info",
	"nwk_netreport_epid",
	"nwk_netupdate_type",
	"nwk_netupdate_info",
	"nwk_netupdate_epid",
	"nwk_edtimeoutreq_reqtime",
	"nwk_edtimeoutreq_edconf",
	"nwk_edtimeoutrsp_status",
	"nwk_edtimeoutrsp_poll",

	"aps_frametype",
	"aps_delmode",
	"aps_ackformat",
	"aps_security",
	"aps_ackreq",
	"aps_exthdr",
	"aps_dstendpoint",
	"aps_groupaddr",
	"aps_clusterid",
	"aps_profileid",
	"aps_srcendpoint",
	"aps_counter",
	"aps_fragmentation",
	"aps_blocknumber",
	"aps_ackbitfield",

	"aps_aux_seclevel",
	"aps_aux_keytype",
	"aps_aux_extnonce",
	"aps_aux_framecounter",
	"aps_aux_srcaddr",
	"aps_aux_keyseqnum",
	"aps_decryptedpayload",
	"aps_deckey",

	"aps_cmd_id",
	"aps_transportkey_type",
	"aps_transportkey_key",
	"aps_transportkey_seqnum",
	"aps_transportkey_destaddr",
	"aps_transportkey_srcaddr",
	"aps_updatedevice_addr",
	"aps_updatedevice_shortaddr",
	"aps_updatedevice_status",
	"aps_removedevice_addr",
	"aps_requestkey_type",
	"aps_requestkey_addr",
	"aps_switchkey_seqnum",
	"aps_tunnel_destaddr",
	"aps_verifykey_type",
	"aps_verifykey_addr",
	"aps_verifykey_hash",
	"aps_confirmkey_status",
	"aps_confirmkey_type",
	"aps_confirmkey_addr",

	"der_tx_type",
	"der_same_macnwksrc",
	"der_same_macnwkdst",

	"warning_msg",
	"error_msg",
}

var columnSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(columnOrder))
	for _, c := range columnOrder {
		m[c] = struct{}{}
	}
	return m
}()

// ColumnOrder returns the canonical packets-table column order. Callers
// (Store schema, the field-values task) must use this rather than
// hand-maintaining their own copy.
func ColumnOrder() []string {
	out := make([]string, len(columnOrder))
	copy(out, columnOrder)
	return out
}

// IsKnownColumn reports whether name is part of the fixed column schema.
func IsKnownColumn(name string) bool {
	_, ok := columnSet[name]
	return ok
}
