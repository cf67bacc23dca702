package capture

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	blockTypeSectionHeader     = 0x0a0d0d0a
	blockTypeInterfaceDesc     = 0x00000001
	blockTypeEnhancedPacket    = 0x00000006
	blockTypeSimplePacket      = 0x00000003
	optionEndOfOpt             = 0
	optionIfTSResol            = 9
	defaultTSResolExponent     = 6 // microseconds
)

type pcapngInterface struct {
	linkType    uint16
	tsResolExp  uint8 // timestamp units are 10^-tsResolExp seconds
}

type pcapngReader struct {
	r          io.Reader
	closer     io.Closer
	order      binary.ByteOrder
	interfaces []pcapngInterface
	num        int
}

func newPcapNGReader(r io.Reader, closer io.Closer) (*pcapngReader, error) {
	p := &pcapngReader{r: r, closer: closer}

	// The first block must be a Section Header Block; its byte-order magic
	// tells us how to read everything that follows.
	blockType, body, err := p.readRawBlock(binary.LittleEndian)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("capture: read pcapng section header: %w", err)
	}
	if blockType != blockTypeSectionHeader {
		closer.Close()
		return nil, fmt.Errorf("capture: pcapng file does not start with a section header block")
	}
	if len(body) < 4 {
		closer.Close()
		return nil, fmt.Errorf("capture: truncated pcapng section header")
	}
	switch binary.LittleEndian.Uint32(body[0:4]) {
	case 0x1a2b3c4d:
		p.order = binary.LittleEndian
	case 0x4d3c2b1a:
		p.order = binary.BigEndian
	default:
		closer.Close()
		return nil, fmt.Errorf("capture: unrecognized pcapng byte-order magic")
	}

	return p, nil
}

// readRawBlock reads one block using order for the two length fields and
// returns its type and body (the bytes between the two length fields).
func (p *pcapngReader) readRawBlock(order binary.ByteOrder) (uint32, []byte, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(p.r, head); err != nil {
		return 0, nil, err
	}
	blockType := order.Uint32(head[0:4])
	totalLen := order.Uint32(head[4:8])
	if totalLen < 12 {
		return 0, nil, fmt.Errorf("capture: implausible pcapng block length %d", totalLen)
	}

	bodyLen := totalLen - 12 // minus the two length fields and the type field
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(p.r, body); err != nil {
		return 0, nil, err
	}

	trailer := make([]byte, 4)
	if _, err := io.ReadFull(p.r, trailer); err != nil {
		return 0, nil, err
	}
	return blockType, body, nil
}

func (p *pcapngReader) Next() (Packet, error) {
	for {
		blockType, body, err := p.readRawBlock(p.order)
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				return Packet{}, io.EOF
			}
			return Packet{}, err
		}

		switch blockType {
		case blockTypeInterfaceDesc:
			if len(body) < 8 {
				return Packet{}, fmt.Errorf("capture: truncated pcapng interface description block")
			}
			iface := pcapngInterface{
				linkType:   p.order.Uint16(body[0:2]),
				tsResolExp: defaultTSResolExponent,
			}
			if exp, ok := parseIfTSResol(body[8:]); ok {
				iface.tsResolExp = exp
			}
			p.interfaces = append(p.interfaces, iface)

		case blockTypeEnhancedPacket:
			pkt, err := p.parseEnhancedPacket(body)
			if err != nil {
				return Packet{}, err
			}
			p.num++
			pkt.Num = p.num
			return pkt, nil

		case blockTypeSimplePacket, blockTypeSectionHeader:
			// Simple Packet Blocks carry no timestamp or interface id and
			// a fresh Section Header Block would need its own byte-order
			// re-negotiation; neither is produced by any capture tool this
			// reader targets, so both are skipped rather than rejected.
			continue

		default:
			continue
		}
	}
}

func (p *pcapngReader) parseEnhancedPacket(body []byte) (Packet, error) {
	if len(body) < 20 {
		return Packet{}, fmt.Errorf("capture: truncated pcapng enhanced packet block")
	}
	ifaceID := p.order.Uint32(body[0:4])
	tsHigh := p.order.Uint32(body[4:8])
	tsLow := p.order.Uint32(body[8:12])
	capLen := p.order.Uint32(body[12:16])

	if int(capLen) > len(body)-20 {
		return Packet{}, fmt.Errorf("capture: pcapng captured length exceeds block body")
	}
	data := body[20 : 20+capLen]

	var linkType uint32
	var tsResolExp uint8 = defaultTSResolExponent
	if int(ifaceID) < len(p.interfaces) {
		linkType = uint32(p.interfaces[ifaceID].linkType)
		tsResolExp = p.interfaces[ifaceID].tsResolExp
	}

	ticks := uint64(tsHigh)<<32 | uint64(tsLow)
	ts := float64(ticks) / pow10(tsResolExp)

	payload, ok := unwrapLinkLayer(linkType, data)
	return Packet{Time: ts, Payload: payload, LinkLayerOK: ok}, nil
}

func (p *pcapngReader) Close() error {
	return p.closer.Close()
}

// parseIfTSResol scans an Interface Description Block's options for
// if_tsresol (option code 9): one byte whose high bit selects base-2 vs
// base-10 and whose low 7 bits give the exponent. Only base-10 resolutions
// are supported (the overwhelming common case); a base-2 resolution falls
// back to the pcapng default of microseconds.
func parseIfTSResol(options []byte) (uint8, bool) {
	for len(options) >= 4 {
		code := binary.LittleEndian.Uint16(options[0:2])
		length := binary.LittleEndian.Uint16(options[2:4])
		padded := int(length)
		if padded%4 != 0 {
			padded += 4 - padded%4
		}
		if len(options) < 4+padded {
			return 0, false
		}
		value := options[4 : 4+length]
		if code == optionIfTSResol && len(value) == 1 {
			if value[0]&0x80 == 0 {
				return value[0] & 0x7f, true
			}
			return defaultTSResolExponent, true
		}
		if code == optionEndOfOpt {
			return 0, false
		}
		options = options[4+padded:]
	}
	return 0, false
}

func pow10(exp uint8) float64 {
	v := 1.0
	for i := uint8(0); i < exp; i++ {
		v *= 10
	}
	return v
}
