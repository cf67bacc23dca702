// Package capture reads pcap and pcapng capture files containing IEEE
// 802.15.4 traffic, transparently decompressing gzip-compressed captures,
// and yields one raw PHY payload per packet for the decode pipeline.
package capture

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// linkTypeIEEE802154 is the link type for raw IEEE 802.15.4 frames with a
// trailing FCS.
const linkTypeIEEE802154 = 195

// linkTypeLinuxSLL is the link type for the same frames wrapped in a
// 16-byte Linux "cooked capture" header.
const linkTypeLinuxSLL = 147

// sllHeaderLen is the fixed size of a Linux SLL header: packet type (2),
// ARPHRD address type (2), address length (2), address (8), protocol (2).
const sllHeaderLen = 16

// arphrdIEEE802154Family is the set of SLL header ARPHRD address-type values
// this reader accepts as "IEEE 802.15.4 family", covering both the plain and
// the monitor-mode ARPHRD assignments a capture tool may use.
var arphrdIEEE802154Family = map[uint16]bool{
	0x00f5: true, // ARPHRD_IEEE802154
	0x00f6: true, // ARPHRD_IEEE802154_MONITOR
}

// Packet is one decoded capture record ready for the decode pipeline.
type Packet struct {
	Num        int
	Time       float64 // seconds since the Unix epoch
	Payload    []byte  // raw IEEE 802.15.4 PHY bytes including FCS
	LinkLayerOK bool   // false when the link type/family was unrecognized
}

// Reader yields packets from a single capture file in on-disk order.
type Reader interface {
	// Next returns the next packet, or io.EOF once the file is exhausted.
	Next() (Packet, error)
	Close() error
}

// Open opens path (transparently gunzipping any file that starts with the
// gzip magic number; the file name's suffix is not consulted) and returns a Reader for whichever of pcap/pcapng format it
// detects from the leading bytes.
func Open(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %q: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: read magic of %q: %w", path, err)
	}

	var r io.Reader = br
	var closer io.Closer = f
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("capture: gunzip %q: %w", path, err)
		}
		r = gz
		closer = multiCloser{gz, f}
	}

	bufr := bufio.NewReader(r)
	header, err := bufr.Peek(4)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("capture: read container magic of %q: %w", path, err)
	}

	magic32 := binary.LittleEndian.Uint32(header)
	switch magic32 {
	case 0xa1b2c3d4, 0xd4c3b2a1, 0x4d3cb2a1, 0xa1b23c4d:
		return newPcapReader(bufr, closer, magic32)
	case 0x0a0d0d0a:
		return newPcapNGReader(bufr, closer)
	default:
		closer.Close()
		return nil, fmt.Errorf("capture: %q is neither pcap nor pcapng (unrecognized magic %#x)", path, magic32)
	}
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	for _, c := range m {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}

// unwrapLinkLayer strips a capture's link-type framing and returns the raw
// IEEE 802.15.4 PHY bytes. ok is false when the link type is unsupported or
// (for SLL) the protocol family isn't IEEE 802.15.4.
func unwrapLinkLayer(linkType uint32, data []byte) (payload []byte, ok bool) {
	switch linkType {
	case linkTypeIEEE802154:
		return data, true
	case linkTypeLinuxSLL:
		if len(data) < sllHeaderLen {
			return nil, false
		}
		family := binary.BigEndian.Uint16(data[2:4])
		if !arphrdIEEE802154Family[family] {
			return nil, false
		}
		return data[sllHeaderLen:], true
	default:
		return nil, false
	}
}
