// Package keyring holds the named key material a capture can be decrypted
// against: network keys, link keys, and keys derived from install codes.
// The tablets are loaded once before any worker starts, and workers only
// read the ring; the sole later additions are sniffed keys, which the
// inference engine adds after the parse workers have finished.
package keyring

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zigator-go/zigator/pkg/zbcrypto"
)

// KeyType identifies which tablet a candidate key is drawn from, mirroring
// the Zigbee auxiliary-header key-type field.
type KeyType int

const (
	KeyTypeDataKey KeyType = iota
	KeyTypeNetworkKey
	KeyTypeKeyTransportKey
	KeyTypeKeyLoadKey
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeDataKey:
		return "Data Key"
	case KeyTypeNetworkKey:
		return "Network Key"
	case KeyTypeKeyTransportKey:
		return "Key-Transport Key"
	case KeyTypeKeyLoadKey:
		return "Key-Load Key"
	default:
		return "Unknown key type"
	}
}

// NamedKey is a single entry returned by Candidates: its name (for
// provenance in a decrypted record) and its raw 16-byte value.
type NamedKey struct {
	Name  string
	Bytes [16]byte
}

// KeyRing holds the three named key collections a capture is decrypted
// against. The zero value is ready to use.
type KeyRing struct {
	networkKeys map[string][16]byte
	linkKeys    map[string][16]byte
	derivedKeys map[string][16]byte

	// InstallCodes records accepted install codes by name, for provenance
	// and for tests asserting which codes passed the CRC gate.
	InstallCodes map[string][18]byte
}

// New returns an empty KeyRing with all three tablets initialized.
func New() *KeyRing {
	return &KeyRing{
		networkKeys:  map[string][16]byte{},
		linkKeys:     map[string][16]byte{},
		derivedKeys:  map[string][16]byte{},
		InstallCodes: map[string][18]byte{},
	}
}

// LoadNetworkKeys reads a tab-separated "hex\tname" file of 128-bit network
// keys into the ring. If optional is true and the file doesn't exist, this
// is a silent no-op.
func (r *KeyRing) LoadNetworkKeys(path string, optional bool, log zerolog.Logger) error {
	return r.loadKeyFile(path, optional, r.networkKeys, log)
}

// LoadLinkKeys reads a tab-separated "hex\tname" file of 128-bit link keys
// into the ring. If optional is true and the file doesn't exist, this is a
// silent no-op.
func (r *KeyRing) LoadLinkKeys(path string, optional bool, log zerolog.Logger) error {
	return r.loadKeyFile(path, optional, r.linkKeys, log)
}

func (r *KeyRing) loadKeyFile(path string, optional bool, dst map[string][16]byte, log zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && optional {
			return nil
		}
		return fmt.Errorf("keyring: open %q: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1

	lineNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("keyring: reading %q: %w", path, err)
		}
		lineNum++

		if len(row) != 2 {
			return fmt.Errorf("keyring: line #%d in %q should contain 2 tab-separated values, not %d", lineNum, path, len(row))
		}
		keyHex, keyName := row[0], row[1]

		if !isHexOfLength(keyHex, 32) {
			return fmt.Errorf("keyring: line #%d in %q should contain a 128-bit key using 32 hexadecimal digits, without any prefix", lineNum, path)
		}
		if keyName == "" {
			return fmt.Errorf("keyring: line #%d in %q should contain a unique name for its key", lineNum, path)
		}
		if strings.HasPrefix(keyName, "_") {
			return fmt.Errorf("keyring: line #%d in %q contains a key name that starts with \"_\", which is not allowed", lineNum, path)
		}

		keyBytes, err := decodeHex16(keyHex)
		if err != nil {
			return fmt.Errorf("keyring: line #%d in %q: %w", lineNum, path, err)
		}

		if valueAlreadyLoaded(dst, keyBytes) {
			log.Warn().Str("file", path).Int("line", lineNum).Str("key", keyName).Msg("encryption key appears more than once")
		} else if existing, ok := dst[keyName]; ok {
			log.Warn().Str("file", path).Int("line", lineNum).Str("name", keyName).Str("existing", fmt.Sprintf("%x", existing)).Msg("key name already used, ignoring duplicate")
		} else {
			dst[keyName] = keyBytes
		}
	}
	return nil
}

// LoadInstallCodes reads a tab-separated "hex\tname" file of 144-bit install
// codes, validates each against its CRC-16/X.25 trailer, and derives a link
// key via the Zigbee MMO hash for every code that passes. Derived keys are
// named "_derived_<hex>" and merged into the derived-key tablet. If optional
// is true and the file doesn't exist, this is a silent no-op.
func (r *KeyRing) LoadInstallCodes(path string, optional bool, log zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && optional {
			return nil
		}
		return fmt.Errorf("keyring: open %q: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1

	lineNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("keyring: reading %q: %w", path, err)
		}
		lineNum++

		if len(row) != 2 {
			return fmt.Errorf("keyring: line #%d in %q should contain 2 tab-separated values, not %d", lineNum, path, len(row))
		}
		codeHex, codeName := row[0], row[1]

		if !isHexOfLength(codeHex, 36) {
			return fmt.Errorf("keyring: line #%d in %q should contain a 144-bit install code using 36 hexadecimal digits, without any prefix", lineNum, path)
		}
		if codeName == "" {
			return fmt.Errorf("keyring: line #%d in %q should contain a unique name for its code", lineNum, path)
		}
		if strings.HasPrefix(codeName, "_") {
			return fmt.Errorf("keyring: line #%d in %q contains a code name that starts with \"_\", which is not allowed", lineNum, path)
		}

		codeBytes, err := decodeHex18(codeHex)
		if err != nil {
			return fmt.Errorf("keyring: line #%d in %q: %w", lineNum, path, err)
		}

		computedCRC := zbcrypto.CRC16X25(codeBytes[:16])
		receivedCRC := uint16(codeBytes[16]) | uint16(codeBytes[17])<<8
		if computedCRC != receivedCRC {
			log.Warn().Str("file", path).Int("line", lineNum).
				Str("code", fmt.Sprintf("%x", codeBytes)).
				Uint16("computed_crc", computedCRC).Uint16("received_crc", receivedCRC).
				Msg("ignoring install code with mismatched CRC")
			continue
		}

		if installCodeAlreadyLoaded(r.InstallCodes, codeBytes) {
			log.Warn().Str("file", path).Int("line", lineNum).Str("code", fmt.Sprintf("%x", codeBytes)).Msg("install code appears more than once")
			continue
		}
		if existing, ok := r.InstallCodes[codeName]; ok {
			log.Warn().Str("file", path).Int("line", lineNum).Str("name", codeName).
				Str("existing", fmt.Sprintf("%x", existing)).Msg("code name already used, ignoring duplicate")
			continue
		}

		r.InstallCodes[codeName] = codeBytes

		derivedKey, err := zbcrypto.DeriveLinkKey(codeBytes[:])
		if err != nil {
			return fmt.Errorf("keyring: deriving link key for %q: %w", codeName, err)
		}
		derivedName := fmt.Sprintf("_derived_%x", codeBytes)
		r.derivedKeys[derivedName] = derivedKey
		log.Debug().Str("key", fmt.Sprintf("%x", derivedKey)).Str("code", fmt.Sprintf("%x", codeBytes)).Msg("derived link key from install code")
	}
	return nil
}

// AddSniffedNetworkKey inserts a network key recovered at runtime (from a
// decrypted APS Transport Key command) under name. Returns false without
// modifying the ring if name or an identical key value is already present,
// matching the same first-wins dedupe LoadNetworkKeys applies to file-loaded
// keys.
func (r *KeyRing) AddSniffedNetworkKey(name string, key [16]byte) bool {
	if _, exists := r.networkKeys[name]; exists {
		return false
	}
	if valueAlreadyLoaded(r.networkKeys, key) {
		return false
	}
	r.networkKeys[name] = key
	return true
}

// AddSniffedLinkKey inserts a link key recovered at runtime (from a
// decrypted APS Transport Key command carrying a Trust Center Link Key)
// under name, with the same dedupe rule as AddSniffedNetworkKey.
func (r *KeyRing) AddSniffedLinkKey(name string, key [16]byte) bool {
	if _, exists := r.linkKeys[name]; exists {
		return false
	}
	if valueAlreadyLoaded(r.linkKeys, key) {
		return false
	}
	r.linkKeys[name] = key
	return true
}

// Candidates returns every key of the requested type, ordered by name, as
// (name, bytes) pairs. Network Key candidates are drawn from the network-key
// tablet. The remaining three types (Data Key, Key-Transport Key, Key-Load
// Key) are only offered candidates — drawn from the link-key and derived-key
// tablets — when attemptNonNetworkKeyTypes is true; otherwise they return no
// candidates, replicating the original analyzer's silent no-op.
func (r *KeyRing) Candidates(keyType KeyType, attemptNonNetworkKeyTypes bool) []NamedKey {
	switch keyType {
	case KeyTypeNetworkKey:
		return sortedCandidates(r.networkKeys)
	case KeyTypeDataKey, KeyTypeKeyTransportKey, KeyTypeKeyLoadKey:
		if !attemptNonNetworkKeyTypes {
			return nil
		}
		combined := make(map[string][16]byte, len(r.linkKeys)+len(r.derivedKeys))
		for name, key := range r.linkKeys {
			combined[name] = key
		}
		for name, key := range r.derivedKeys {
			combined[name] = key
		}
		return sortedCandidates(combined)
	default:
		return nil
	}
}

func sortedCandidates(m map[string][16]byte) []NamedKey {
	out := make([]NamedKey, 0, len(m))
	for name, key := range m {
		out = append(out, NamedKey{Name: name, Bytes: key})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func valueAlreadyLoaded(m map[string][16]byte, v [16]byte) bool {
	for _, existing := range m {
		if existing == v {
			return true
		}
	}
	return false
}

func installCodeAlreadyLoaded(m map[string][18]byte, v [18]byte) bool {
	for _, existing := range m {
		if existing == v {
			return true
		}
	}
	return false
}

func isHexOfLength(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func decodeHex16(s string) ([16]byte, error) {
	var out [16]byte
	b, err := decodeHexBytes(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func decodeHex18(s string) ([18]byte, error) {
	var out [18]byte
	b, err := decodeHexBytes(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func decodeHexBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexDigit(s[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexDigit(s[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexDigit(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}
