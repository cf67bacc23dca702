package capture

import (
	"encoding/binary"
	"fmt"
	"io"
)

// pcapGlobalHeaderLen is the classic pcap global header: magic (4),
// version major/minor (2+2), thiszone (4), sigfigs (4), snaplen (4),
// network/link-type (4).
const pcapGlobalHeaderLen = 24

// pcapRecordHeaderLen is the classic pcap per-packet header: ts_sec (4),
// ts_usec or ts_nsec (4), incl_len (4), orig_len (4).
const pcapRecordHeaderLen = 16

type pcapReader struct {
	r        io.Reader
	closer   io.Closer
	order    binary.ByteOrder
	nsec     bool
	linkType uint32
	num      int
}

func newPcapReader(r io.Reader, closer io.Closer, magic uint32) (*pcapReader, error) {
	order := binary.ByteOrder(binary.LittleEndian)
	nsec := false
	switch magic {
	case 0xa1b2c3d4:
		order = binary.LittleEndian
	case 0xd4c3b2a1:
		order = binary.BigEndian
	case 0xa1b23c4d:
		order = binary.LittleEndian
		nsec = true
	case 0x4d3cb2a1:
		order = binary.BigEndian
		nsec = true
	}

	header := make([]byte, pcapGlobalHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		closer.Close()
		return nil, fmt.Errorf("capture: read pcap global header: %w", err)
	}

	return &pcapReader{
		r:        r,
		closer:   closer,
		order:    order,
		nsec:     nsec,
		linkType: order.Uint32(header[20:24]),
	}, nil
}

func (p *pcapReader) Next() (Packet, error) {
	header := make([]byte, pcapRecordHeaderLen)
	if _, err := io.ReadFull(p.r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Packet{}, io.EOF
		}
		return Packet{}, err
	}

	tsSec := p.order.Uint32(header[0:4])
	tsFrac := p.order.Uint32(header[4:8])
	inclLen := p.order.Uint32(header[8:12])

	data := make([]byte, inclLen)
	if _, err := io.ReadFull(p.r, data); err != nil {
		return Packet{}, fmt.Errorf("capture: read pcap record data: %w", err)
	}

	var ts float64
	if p.nsec {
		ts = float64(tsSec) + float64(tsFrac)/1e9
	} else {
		ts = float64(tsSec) + float64(tsFrac)/1e6
	}

	p.num++
	payload, ok := unwrapLinkLayer(p.linkType, data)
	return Packet{Num: p.num, Time: ts, Payload: payload, LinkLayerOK: ok}, nil
}

func (p *pcapReader) Close() error {
	return p.closer.Close()
}
