package zigbee

import "fmt"

var apsFrameTypes = map[uint64]string{
	0b00: "APS Data",
	0b01: "APS Command",
	0b10: "APS Acknowledgment",
	0b11: "APS Inter-PAN",
}

var apsDeliveryModes = map[uint64]string{
	0b00: "Unicast",
	0b01: "Reserved",
	0b10: "Broadcast",
	0b11: "Group addressing",
}

// DecodeAPS parses the Zigbee APS layer from payload (the decrypted NWK
// payload of a Data frame) into f. Like DecodeNWK it returns the decoded
// payload tail for higher layers when one exists, or nil at a terminal
// condition. sec gives access to KeyRing candidates for aux security.
func DecodeAPS(f *Frame, payload []byte, sec *SecurityStage) []byte {
	if len(payload) < 1 {
		f.SetError(ErrInvalidLength)
		return nil
	}

	r := newReader(payload)
	headerStart := 0
	fc, _ := r.u8()

	frameType := uint64(fc) & 0x3
	delMode := (uint64(fc) >> 2) & 0x3
	ackFormat := (fc >> 4) & 1
	security := (fc >> 5) & 1
	ackReq := (fc >> 6) & 1
	extHdr := (fc >> 7) & 1

	frameTypeStr, ok := apsFrameTypes[frameType]
	if !ok {
		f.SetError(unknownState("aps_frametype"))
		return nil
	}
	f.Set("aps_frametype", renderBits(frameType, 2, frameTypeStr))

	delModeStr, ok := apsDeliveryModes[delMode]
	if !ok {
		f.SetError(unknownState("aps_delmode"))
		return nil
	}
	f.Set("aps_delmode", renderBits(delMode, 2, delModeStr))
	f.Set("aps_ackformat", renderBits(uint64(ackFormat), 1, boolLabel(ackFormat == 1, "APS acknowledgment format", "Standard APS header")))
	f.Set("aps_security", renderBits(uint64(security), 1, boolLabel(security == 1, "APS Security Enabled", "APS Security Disabled")))
	f.Set("aps_ackreq", renderBits(uint64(ackReq), 1, boolLabel(ackReq == 1, "Acknowledgment requested", "No acknowledgment requested")))
	f.Set("aps_exthdr", renderBits(uint64(extHdr), 1, boolLabel(extHdr == 1, "Extended header present", "No extended header")))

	switch frameType {
	case 0b01: // Command
		counter, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("aps_counter", fmt.Sprintf("%d", counter))

	case 0b11: // Inter-PAN
		clusterID, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		profileID, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("aps_clusterid", fmt.Sprintf("0x%04x", clusterID))
		f.Set("aps_profileid", fmt.Sprintf("0x%04x", profileID))

	default: // Data, Acknowledgment
		if delMode == 0b11 { // Group addressing
			group, ok := r.u16le()
			if !ok {
				f.SetError(ErrInvalidLength)
				return nil
			}
			f.Set("aps_groupaddr", fmt.Sprintf("0x%04x", group))
		} else {
			endpoint, ok := r.u8()
			if !ok {
				f.SetError(ErrInvalidLength)
				return nil
			}
			f.Set("aps_dstendpoint", fmt.Sprintf("%d", endpoint))
		}
		clusterID, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		profileID, ok := r.u16le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("aps_clusterid", fmt.Sprintf("0x%04x", clusterID))
		f.Set("aps_profileid", fmt.Sprintf("0x%04x", profileID))
		if frameType == 0b00 { // Data frames also carry a source endpoint
			srcEndpoint, ok := r.u8()
			if !ok {
				f.SetError(ErrInvalidLength)
				return nil
			}
			f.Set("aps_srcendpoint", fmt.Sprintf("%d", srcEndpoint))
		}
		counter, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("aps_counter", fmt.Sprintf("%d", counter))
	}

	if extHdr == 1 {
		fragmentation, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("aps_fragmentation", fmt.Sprintf("%d", fragmentation))
		if fragmentation != 0 {
			blockNum, ok := r.u8()
			if !ok {
				f.SetError(ErrInvalidLength)
				return nil
			}
			f.Set("aps_blocknumber", fmt.Sprintf("%d", blockNum))
			if fragmentation == 2 { // ACK of a fragmented transfer
				bitfield, ok := r.u8()
				if !ok {
					f.SetError(ErrInvalidLength)
					return nil
				}
				f.Set("aps_ackbitfield", fmt.Sprintf("0x%02x", bitfield))
			}
		}
	}

	if security == 0 {
		rest := r.rest()
		return dispatchAPSPayload(f, frameType, rest)
	}

	secControl, ok := r.u8()
	if !ok {
		f.SetError(ErrInvalidLength)
		return nil
	}
	secLevel := secControl & 0x07
	keyTypeBits := (secControl >> 3) & 0x03
	extNonce := (secControl >> 5) & 0x01

	f.Set("aps_aux_seclevel", renderBits(uint64(secLevel), 3, securityLevelLabel(secLevel)))
	keyType := keyringKeyType(keyTypeBits)
	f.Set("aps_aux_keytype", renderBits(uint64(keyTypeBits), 2, keyType.String()))
	f.Set("aps_aux_extnonce", renderBits(uint64(extNonce), 1, boolLabel(extNonce == 1, "The source address is present", "The source address is not present")))

	frameCounter, ok := r.u32le()
	if !ok {
		f.SetError(ErrInvalidLength)
		return nil
	}
	f.Set("aps_aux_framecounter", fmt.Sprintf("%d", frameCounter))

	var candidateSources []uint64
	if extNonce == 1 {
		v, ok := r.u64le()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("aps_aux_srcaddr", fmt.Sprintf("0x%016x", v))
		candidateSources = []uint64{v}
	} else {
		// Potential sources, in priority order: NWK aux source (if this
		// frame's NWK layer was itself secured), then NWK extended source,
		// then MAC extended source.
		if v, ok := f.Get("nwk_aux_srcaddr"); ok {
			candidateSources = append(candidateSources, parseHex64(v))
		}
		if v, ok := f.Get("nwk_srcextendedaddr"); ok {
			candidateSources = append(candidateSources, parseHex64(v))
		}
		if v, ok := f.Get("mac_srcextendedaddr"); ok {
			candidateSources = append(candidateSources, parseHex64(v))
		}
	}

	if keyTypeBits == 1 { // Network Key
		keySeqNum, ok := r.u8()
		if !ok {
			f.SetError(ErrInvalidLength)
			return nil
		}
		f.Set("aps_aux_keyseqnum", fmt.Sprintf("%d", keySeqNum))
	}

	aad := payload[headerStart:r.pos]
	ciphertext := r.rest()

	if sec == nil || len(candidateSources) == 0 {
		f.SetWarning(WarnUndecryptableAPS)
		return nil
	}

	plaintext, keyName, ok := sec.Decrypt(keyType, frameCounter, secControl, candidateSources, aad, ciphertext)
	if !ok {
		f.SetWarning(WarnUndecryptableAPS)
		return nil
	}
	f.Set("aps_decryptedpayload", fmt.Sprintf("0x%x", plaintext))
	f.Set("aps_deckey", keyName)

	return dispatchAPSPayload(f, frameType, plaintext)
}

func dispatchAPSPayload(f *Frame, frameType uint64, payload []byte) []byte {
	switch frameType {
	case 0b01:
		decodeAPSCommand(f, payload)
		return nil
	case 0b10: // Acknowledgment frames carry no payload for higher layers
		return nil
	default:
		return payload
	}
}
