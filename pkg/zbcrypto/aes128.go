// Package zbcrypto implements the cryptographic primitives that the Zigbee
// stack needs on top of a bare AES-128 block cipher: the Matyas-Meyer-Oseas
// hash used to derive link keys from install codes, the CRC-16/X.25 checksum
// that validates install codes, and AES-CCM* authenticated encryption as
// required by IEEE 802.15.4 Annex B.
package zbcrypto

import (
	"crypto/aes"
	"fmt"
)

// KeySize is the width of every Zigbee key: network, link, and derived.
const KeySize = 16

// BlockSize is the AES block size used throughout this package.
const BlockSize = 16

// EncryptBlock runs a single AES-128 ECB block encryption. It is the
// building block for both the MMO hash and CCM*'s CBC-MAC/CTR constructions.
func EncryptBlock(key, block []byte) ([16]byte, error) {
	var out [16]byte
	if len(key) != KeySize {
		return out, fmt.Errorf("zbcrypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(block) != BlockSize {
		return out, fmt.Errorf("zbcrypto: block must be %d bytes, got %d", BlockSize, len(block))
	}
	cipher, err := aes.NewCipher(key)
	if err != nil {
		return out, err
	}
	cipher.Encrypt(out[:], block)
	return out, nil
}

// DecryptBlock runs a single AES-128 ECB block decryption. Zigbee itself
// never needs this (CCM* only ever runs the cipher forward), but it
// completes the block-cipher facade the way a single-block primitive should.
func DecryptBlock(key, block []byte) ([16]byte, error) {
	var out [16]byte
	if len(key) != KeySize {
		return out, fmt.Errorf("zbcrypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(block) != BlockSize {
		return out, fmt.Errorf("zbcrypto: block must be %d bytes, got %d", BlockSize, len(block))
	}
	cipher, err := aes.NewCipher(key)
	if err != nil {
		return out, err
	}
	cipher.Decrypt(out[:], block)
	return out, nil
}
