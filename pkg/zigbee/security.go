package zigbee

import (
	"github.com/zigator-go/zigator/pkg/keyring"
	"github.com/zigator-go/zigator/pkg/zbcrypto"
)

// SecurityStage applies KeyRing candidates against a parsed auxiliary
// header and verifies the MIC, recovering the plaintext of an encrypted
// NWK or APS layer.
type SecurityStage struct {
	Ring *keyring.KeyRing

	// AttemptNonNetworkKeyTypes resolves the open question in the Data/
	// Key-Transport/Key-Load key-type dispatch: when false (default) those
	// three types are never attempted, replicating the original's silent
	// no-op; when true, link-key and derived-key candidates are tried the
	// same way network-key candidates are.
	AttemptNonNetworkKeyTypes bool

	// NegotiatedLevel is the actual security level frames are encrypted
	// under. Zigbee's auxiliary security control octet transmits a zeroed
	// security-level subfield on the wire (the level is negotiated out of
	// band, by stack profile), so the wire bits can't be trusted for MIC
	// length or nonce construction — this is the configured substitute.
	// Zigbee PRO's default is ENC-MIC-32 (level 5).
	NegotiatedLevel uint8
}

// NewSecurityStage returns a SecurityStage with the Zigbee PRO default
// negotiated security level (ENC-MIC-32).
func NewSecurityStage(ring *keyring.KeyRing, attemptNonNetworkKeyTypes bool) *SecurityStage {
	return &SecurityStage{
		Ring:                      ring,
		AttemptNonNetworkKeyTypes: attemptNonNetworkKeyTypes,
		NegotiatedLevel:           5,
	}
}

func keyringKeyType(bits uint8) keyring.KeyType {
	switch bits {
	case 0:
		return keyring.KeyTypeDataKey
	case 1:
		return keyring.KeyTypeNetworkKey
	case 2:
		return keyring.KeyTypeKeyTransportKey
	case 3:
		return keyring.KeyTypeKeyLoadKey
	default:
		return keyring.KeyTypeDataKey
	}
}

// Decrypt tries every (source, key) candidate pair in deterministic order —
// sources outer-to-inner per the auxiliary-header priority, keys ordered by
// name — and returns the first combination whose MIC verifies. aad is
// everything from the start of the layer header through the end of the
// auxiliary header (exactly the bytes CCM* authenticates but doesn't
// encrypt).
func (s *SecurityStage) Decrypt(keyType keyring.KeyType, frameCounter uint32, wireSecControl uint8, candidateSources []uint64, aad, ciphertextWithMIC []byte) (plaintext []byte, keyName string, ok bool) {
	if s.Ring == nil {
		return nil, "", false
	}

	candidates := s.Ring.Candidates(keyType, s.AttemptNonNetworkKeyTypes)
	m := micLength(s.NegotiatedLevel)

	negotiatedControl := (wireSecControl &^ 0x07) | (s.NegotiatedLevel & 0x07)

	for _, source := range candidateSources {
		nonce := buildNonce(source, frameCounter, negotiatedControl)
		for _, cand := range candidates {
			pt, err := zbcrypto.CCMStarDecrypt(cand.Bytes[:], nonce[:], aad, ciphertextWithMIC, m)
			if err == nil {
				return pt, cand.Name, true
			}
		}
	}
	return nil, "", false
}

// buildNonce assembles the 13-byte Zigbee CCM* nonce: the source IEEE
// address (8 bytes LE), the frame counter (4 bytes LE), and the security
// control octet with its security-level subfield forced to the negotiated
// level.
func buildNonce(sourceIEEEAddr uint64, frameCounter uint32, securityControl uint8) [zbcrypto.NonceSize]byte {
	var nonce [zbcrypto.NonceSize]byte
	for i := 0; i < 8; i++ {
		nonce[i] = byte(sourceIEEEAddr >> (8 * i))
	}
	for i := 0; i < 4; i++ {
		nonce[8+i] = byte(frameCounter >> (8 * i))
	}
	nonce[12] = securityControl
	return nonce
}
