package zigbee

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zigator-go/zigator/pkg/keyring"
)

// keyringWithNetworkKey returns a KeyRing holding a single named network key
// for tests that exercise the security stage without needing a real CCM*
// ciphertext/plaintext pair.
func keyringWithNetworkKey(t *testing.T, hexKey string) *keyring.KeyRing {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "network_keys.tsv")
	if err := os.WriteFile(path, []byte(hexKey+"\ttest-key\n"), 0o600); err != nil {
		t.Fatalf("writing temp key file: %v", err)
	}

	ring := keyring.New()
	if err := ring.LoadNetworkKeys(path, false, zerolog.Nop()); err != nil {
		t.Fatalf("LoadNetworkKeys: %v", err)
	}
	return ring
}
