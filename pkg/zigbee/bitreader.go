package zigbee

// reader is a forward-only cursor over a packet's raw bytes. Every
// multi-byte field in IEEE 802.15.4 / Zigbee is transmitted little-endian;
// the uNle methods encode that once instead of scattering byte-order math
// across every decoder.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) u8() (uint8, bool) {
	if r.remaining() < 1 {
		return 0, false
	}
	v := r.data[r.pos]
	r.pos++
	return v, true
}

func (r *reader) u16le() (uint16, bool) {
	if r.remaining() < 2 {
		return 0, false
	}
	v := uint16(r.data[r.pos]) | uint16(r.data[r.pos+1])<<8
	r.pos += 2
	return v, true
}

func (r *reader) u32le() (uint32, bool) {
	if r.remaining() < 4 {
		return 0, false
	}
	v := uint32(r.data[r.pos]) | uint32(r.data[r.pos+1])<<8 |
		uint32(r.data[r.pos+2])<<16 | uint32(r.data[r.pos+3])<<24
	r.pos += 4
	return v, true
}

func (r *reader) u64le() (uint64, bool) {
	if r.remaining() < 8 {
		return 0, false
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(r.data[r.pos+i]) << (8 * i)
	}
	r.pos += 8
	return v, true
}

func (r *reader) bytes(n int) ([]byte, bool) {
	if r.remaining() < n {
		return nil, false
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, true
}

// rest returns every remaining byte and moves the cursor to the end of the
// data — callers that need to keep parsing the returned bytes should use a
// new reader over the returned slice.
func (r *reader) rest() []byte {
	v := r.data[r.pos:]
	r.pos = len(r.data)
	return v
}
