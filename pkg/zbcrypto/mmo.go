package zbcrypto

// MMOHash computes the Zigbee variant of the Matyas-Meyer-Oseas hash over
// input, using AES-128 as the compression function and an all-zero initial
// chaining value. Used to derive a trust-center link key from an 18-byte
// install code, but defined generally over arbitrary input per the Zigbee
// specification.
//
// Padding: the message is padded with a single 0x80 octet followed by zero
// octets up to a 16-byte block boundary, with the final block's last two
// octets overwritten by the big-endian bit length of the *unpadded* input.
// When the unpadded length doesn't leave room for the 2-byte length field in
// the final block, an extra all-zero block is appended first.
func MMOHash(input []byte) ([16]byte, error) {
	padded := padMMO(input)

	var chain [16]byte // all-zero IV
	for off := 0; off < len(padded); off += BlockSize {
		block := padded[off : off+BlockSize]

		enc, err := EncryptBlock(chain[:], block)
		if err != nil {
			return [16]byte{}, err
		}

		var next [16]byte
		for i := range next {
			next[i] = enc[i] ^ block[i]
		}
		chain = next
	}

	return chain, nil
}

func padMMO(input []byte) []byte {
	bitLen := uint16(len(input) * 8)

	padded := make([]byte, 0, len(input)+BlockSize*2)
	padded = append(padded, input...)
	padded = append(padded, 0x80)

	// Zero-pad until exactly 2 bytes short of a block boundary, leaving room
	// for the trailing big-endian bit-length field.
	for len(padded)%BlockSize != BlockSize-2 {
		padded = append(padded, 0x00)
	}

	padded = append(padded, byte(bitLen>>8), byte(bitLen))

	return padded
}

// DeriveLinkKey derives a trust-center link key from an install code using
// the Zigbee MMO hash. The caller is responsible for validating the
// install code's CRC first (see CRC16X25).
func DeriveLinkKey(installCode []byte) ([16]byte, error) {
	return MMOHash(installCode)
}
