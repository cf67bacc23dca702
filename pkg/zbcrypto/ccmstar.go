package zbcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
)

// NonceSize is the fixed Zigbee/IEEE 802.15.4 CCM* nonce length.
const NonceSize = 13

// ErrAuthenticationFailed is returned by CCMStarDecrypt when the MIC doesn't
// verify. It never distinguishes *why* verification failed (wrong key, wrong
// key, tampered ciphertext, tampered AAD) — CCM* authentication is
// all-or-nothing by design.
var ErrAuthenticationFailed = errors.New("zbcrypto: CCM* authentication failed")

// validMICLengths enumerates the MIC lengths CCM* (as relaxed by IEEE
// 802.15.4 Annex B from plain AES-CCM) permits: 0 means encryption with no
// tag, the rest are standard AES-CCM tag sizes.
var validMICLengths = map[int]bool{0: true, 4: true, 8: true, 16: true}

// CCMStarEncrypt runs the forward CCM* transform: authenticate aad and
// plaintext under key and nonce, and CTR-encrypt plaintext (at every M,
// including M == 0, where no MIC is appended). Returns ciphertext with the
// M-byte MIC appended.
func CCMStarEncrypt(key, nonce, aad, plaintext []byte, m int) ([]byte, error) {
	block, err := newCCMBlock(key, nonce, m)
	if err != nil {
		return nil, err
	}

	tag := block.computeTag(aad, plaintext)
	s0 := block.keystreamBlock(0)

	out := make([]byte, len(plaintext)+m)
	block.ctr(1, plaintext, out[:len(plaintext)])
	for i := 0; i < m; i++ {
		out[len(plaintext)+i] = tag[i] ^ s0[i]
	}
	return out, nil
}

// CCMStarDecrypt runs the inverse CCM* transform and verifies the MIC in
// constant time. M must be one of {0, 4, 8, 16}; ciphertextWithMIC must be at
// least m bytes long. Returns ErrAuthenticationFailed (never a partially
// decrypted plaintext) if the MIC doesn't match.
func CCMStarDecrypt(key, nonce, aad, ciphertextWithMIC []byte, m int) ([]byte, error) {
	block, err := newCCMBlock(key, nonce, m)
	if err != nil {
		return nil, err
	}
	if len(ciphertextWithMIC) < m {
		return nil, fmt.Errorf("zbcrypto: ciphertext shorter than MIC length %d", m)
	}

	ciphertext := ciphertextWithMIC[:len(ciphertextWithMIC)-m]
	receivedTag := ciphertextWithMIC[len(ciphertextWithMIC)-m:]

	plaintext := make([]byte, len(ciphertext))
	block.ctr(1, ciphertext, plaintext)

	// The transmitted tag is masked with S_0; unmask it before comparing
	// against the clear CBC-MAC output from computeTag.
	s0 := block.keystreamBlock(0)
	unmaskedTag := make([]byte, m)
	for i := 0; i < m; i++ {
		unmaskedTag[i] = receivedTag[i] ^ s0[i]
	}

	expectedTag := block.computeTag(aad, plaintext)

	if m == 0 {
		return plaintext, nil
	}
	if subtle.ConstantTimeCompare(unmaskedTag, expectedTag[:m]) != 1 {
		return nil, ErrAuthenticationFailed
	}

	return plaintext, nil
}

type ccmBlock struct {
	cipher cipher.Block
	nonce  []byte
	m      int // MIC length in bytes: 0, 4, 8, or 16
	l      int // length-field size in bytes; fixed at 2 for the 13-byte Zigbee nonce
}

func newCCMBlock(key, nonce []byte, m int) (*ccmBlock, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("zbcrypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("zbcrypto: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	if !validMICLengths[m] {
		return nil, fmt.Errorf("zbcrypto: invalid MIC length %d, must be 0, 4, 8, or 16", m)
	}

	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return &ccmBlock{cipher: c, nonce: nonce, m: m, l: 15 - NonceSize}, nil
}

// computeTag runs the CBC-MAC pass over B0 || AAD-length-prefixed-AAD ||
// plaintext and returns the full 16-byte MAC (only the first m bytes are
// ever used as the transmitted tag).
func (b *ccmBlock) computeTag(aad, plaintext []byte) []byte {
	hasAAD := len(aad) > 0

	flags := byte(0)
	if hasAAD {
		flags |= 1 << 6
	}
	// M' field: CCM* with M=0 (encryption, no tag) still encodes M'=0 for
	// the tag-size subfield when no tag is transmitted.
	mPrime := 0
	if b.m > 0 {
		mPrime = (b.m - 2) / 2
	}
	flags |= byte(mPrime) << 3
	flags |= byte(b.l - 1)

	b0 := make([]byte, BlockSize)
	b0[0] = flags
	copy(b0[1:1+NonceSize], b.nonce)
	putLength(b0[1+NonceSize:], len(plaintext), b.l)

	state := make([]byte, BlockSize)
	encryptInto(b.cipher, state, b0)

	if hasAAD {
		// The AAD length header and the AAD itself share block boundaries;
		// only the very end of the combined stream is zero-padded.
		header := encodeAADHeader(aad)
		combined := make([]byte, 0, len(header)+len(aad))
		combined = append(combined, header...)
		combined = append(combined, aad...)
		state = b.absorb(state, combined)
	}
	state = b.absorb(state, plaintext)

	return state
}

// absorb XORs data (processed in 16-byte blocks, zero-padded in the last
// block) into state and re-encrypts after every block, continuing a
// CBC-MAC chain. Returns the resulting chaining value.
func (b *ccmBlock) absorb(state []byte, data []byte) []byte {
	for len(data) > 0 {
		n := len(data)
		if n > BlockSize {
			n = BlockSize
		}
		for i := 0; i < n; i++ {
			state[i] ^= data[i]
		}
		encryptInto(b.cipher, state, state)
		data = data[n:]
	}
	return state
}

// ctr runs AES-CTR keyed on the CCM* counter blocks starting at startCounter
// (S_0 is reserved for masking the tag; encryption starts at S_1).
func (b *ccmBlock) ctr(startCounter int, src, dst []byte) {
	ctr := make([]byte, BlockSize)
	ctr[0] = byte(b.l - 1)
	copy(ctr[1:1+NonceSize], b.nonce)

	counter := startCounter
	for off := 0; off < len(src); off += BlockSize {
		putLength(ctr[1+NonceSize:], counter, b.l)
		var keystream [BlockSize]byte
		encryptInto(b.cipher, keystream[:], ctr)

		end := off + BlockSize
		if end > len(src) {
			end = len(src)
		}
		for i := off; i < end; i++ {
			dst[i] = src[i] ^ keystream[i-off]
		}
		counter++
	}
}

// keystreamBlock returns E(K, A_counter) for masking the transmitted MIC
// (counter == 0) or for general keystream use.
func (b *ccmBlock) keystreamBlock(counter int) []byte {
	ctr := make([]byte, BlockSize)
	ctr[0] = byte(b.l - 1)
	copy(ctr[1:1+NonceSize], b.nonce)
	putLength(ctr[1+NonceSize:], counter, b.l)

	out := make([]byte, BlockSize)
	encryptInto(b.cipher, out, ctr)
	return out
}

func encryptInto(c cipher.Block, dst, src []byte) {
	c.Encrypt(dst, src)
}

func putLength(dst []byte, length int, l int) {
	for i := l - 1; i >= 0; i-- {
		dst[i] = byte(length)
		length >>= 8
	}
}

func encodeAADHeader(aad []byte) []byte {
	n := len(aad)
	if n < (1<<16)-(1<<8) {
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(n))
		return buf
	}
	if n < (1 << 32) {
		buf := make([]byte, 6)
		buf[0], buf[1] = 0xFF, 0xFE
		binary.BigEndian.PutUint32(buf[2:], uint32(n))
		return buf
	}
	buf := make([]byte, 10)
	buf[0], buf[1] = 0xFF, 0xFF
	binary.BigEndian.PutUint64(buf[2:], uint64(n))
	return buf
}

