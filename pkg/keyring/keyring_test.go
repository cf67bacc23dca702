package keyring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zigator-go/zigator/pkg/zbcrypto"
)

func writeTempFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoadNetworkKeysBasic(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "keys.tsv",
		"0102030405060708090a0b0c0d0e0f10\tnetkey1\n"+
			"101112131415161718191a1b1c1d1e1f\tnetkey2\n")

	r := New()
	if err := r.LoadNetworkKeys(path, false, zerolog.Nop()); err != nil {
		t.Fatalf("LoadNetworkKeys: %v", err)
	}

	candidates := r.Candidates(KeyTypeNetworkKey, false)
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Name != "netkey1" || candidates[1].Name != "netkey2" {
		t.Fatalf("candidates not sorted by name: %+v", candidates)
	}
}

func TestLoadNetworkKeysDuplicateNameKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "keys.tsv",
		"0102030405060708090a0b0c0d0e0f10\tdup\n"+
			"101112131415161718191a1b1c1d1e1f\tdup\n")

	r := New()
	if err := r.LoadNetworkKeys(path, false, zerolog.Nop()); err != nil {
		t.Fatalf("LoadNetworkKeys: %v", err)
	}

	candidates := r.Candidates(KeyTypeNetworkKey, false)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	want, _ := decodeHex16("0102030405060708090a0b0c0d0e0f10")
	if candidates[0].Bytes != want {
		t.Fatalf("expected first-loaded key to be retained, got %x", candidates[0].Bytes)
	}
}

func TestLoadNetworkKeysRejectsReservedName(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "keys.tsv", "0102030405060708090a0b0c0d0e0f10\t_reserved\n")

	r := New()
	if err := r.LoadNetworkKeys(path, false, zerolog.Nop()); err == nil {
		t.Fatal("expected error for name starting with underscore")
	}
}

func TestLoadNetworkKeysOptionalMissingFile(t *testing.T) {
	r := New()
	if err := r.LoadNetworkKeys(filepath.Join(t.TempDir(), "missing.tsv"), true, zerolog.Nop()); err != nil {
		t.Fatalf("expected no error for optional missing file, got %v", err)
	}
	if len(r.Candidates(KeyTypeNetworkKey, false)) != 0 {
		t.Fatal("expected empty key ring")
	}
}

func TestLoadNetworkKeysRequiredMissingFile(t *testing.T) {
	r := New()
	if err := r.LoadNetworkKeys(filepath.Join(t.TempDir(), "missing.tsv"), false, zerolog.Nop()); err == nil {
		t.Fatal("expected error for required missing file")
	}
}

func TestLoadInstallCodesDerivesLinkKey(t *testing.T) {
	body := [16]byte{
		0x83, 0xFE, 0xD3, 0x40, 0x7A, 0x93, 0x97, 0x23,
		0xA5, 0xC6, 0x39, 0xB2, 0x69, 0x16, 0xD5, 0x05,
	}
	crc := zbcrypto.CRC16X25(body[:])
	code := append(append([]byte{}, body[:]...), byte(crc), byte(crc>>8))

	dir := t.TempDir()
	path := writeTempFile(t, dir, "codes.tsv", hexEncode(code)+"\tcode1\n")

	r := New()
	if err := r.LoadInstallCodes(path, false, zerolog.Nop()); err != nil {
		t.Fatalf("LoadInstallCodes: %v", err)
	}

	if len(r.InstallCodes) != 1 {
		t.Fatalf("got %d install codes, want 1", len(r.InstallCodes))
	}

	// Derived keys only surface through non-network key types with the
	// policy flag enabled.
	candidates := r.Candidates(KeyTypeDataKey, true)
	if len(candidates) != 1 {
		t.Fatalf("got %d derived-key candidates, want 1", len(candidates))
	}

	wantKey, err := zbcrypto.DeriveLinkKey(code)
	if err != nil {
		t.Fatalf("DeriveLinkKey: %v", err)
	}
	if candidates[0].Bytes != wantKey {
		t.Fatalf("derived key mismatch: got %x, want %x", candidates[0].Bytes, wantKey)
	}
}

func TestLoadInstallCodesRejectsBadCRC(t *testing.T) {
	body := [16]byte{
		0x83, 0xFE, 0xD3, 0x40, 0x7A, 0x93, 0x97, 0x23,
		0xA5, 0xC6, 0x39, 0xB2, 0x69, 0x16, 0xD5, 0x05,
	}
	// Deliberately wrong CRC trailer.
	code := append(append([]byte{}, body[:]...), 0x00, 0x00)

	dir := t.TempDir()
	path := writeTempFile(t, dir, "codes.tsv", hexEncode(code)+"\tbadcode\n")

	r := New()
	if err := r.LoadInstallCodes(path, false, zerolog.Nop()); err != nil {
		t.Fatalf("LoadInstallCodes: %v", err)
	}
	if len(r.InstallCodes) != 0 {
		t.Fatal("expected install code with bad CRC to be rejected")
	}
	if len(r.Candidates(KeyTypeDataKey, true)) != 0 {
		t.Fatal("expected no derived key from a rejected install code")
	}
}

func TestCandidatesWithoutPolicyFlagAreEmptyForNonNetworkTypes(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "keys.tsv", "0102030405060708090a0b0c0d0e0f10\tlinkkey1\n")

	r := New()
	if err := r.LoadLinkKeys(path, false, zerolog.Nop()); err != nil {
		t.Fatalf("LoadLinkKeys: %v", err)
	}

	for _, kt := range []KeyType{KeyTypeDataKey, KeyTypeKeyTransportKey, KeyTypeKeyLoadKey} {
		if got := r.Candidates(kt, false); len(got) != 0 {
			t.Fatalf("%s: expected no candidates without policy flag, got %+v", kt, got)
		}
	}

	if got := r.Candidates(KeyTypeKeyLoadKey, true); len(got) != 1 {
		t.Fatalf("expected 1 candidate with policy flag enabled, got %d", len(got))
	}
}

func TestAddSniffedNetworkKeyDedupesByNameAndValue(t *testing.T) {
	r := New()
	key := [16]byte{1, 2, 3}
	if !r.AddSniffedNetworkKey("_sniffed_010203", key) {
		t.Fatal("expected first add to succeed")
	}
	if r.AddSniffedNetworkKey("_sniffed_010203", [16]byte{9, 9, 9}) {
		t.Fatal("expected duplicate name to be rejected")
	}
	if r.AddSniffedNetworkKey("_sniffed_other", key) {
		t.Fatal("expected duplicate value to be rejected")
	}

	candidates := r.Candidates(KeyTypeNetworkKey, false)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Bytes != key {
		t.Fatalf("unexpected key bytes: %x", candidates[0].Bytes)
	}
}

func TestAddSniffedLinkKeyDedupesByNameAndValue(t *testing.T) {
	r := New()
	key := [16]byte{4, 5, 6}
	if !r.AddSniffedLinkKey("_sniffed_040506", key) {
		t.Fatal("expected first add to succeed")
	}
	if r.AddSniffedLinkKey("_sniffed_040506", [16]byte{7, 7, 7}) {
		t.Fatal("expected duplicate name to be rejected")
	}
	if r.AddSniffedLinkKey("_sniffed_other", key) {
		t.Fatal("expected duplicate value to be rejected")
	}

	// Link keys only surface through the non-network key types, and only
	// when the policy flag is enabled.
	if got := r.Candidates(KeyTypeDataKey, false); len(got) != 0 {
		t.Fatalf("expected no candidates without policy flag, got %d", len(got))
	}
	candidates := r.Candidates(KeyTypeDataKey, true)
	if len(candidates) != 1 || candidates[0].Bytes != key {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[2*i] = digits[c>>4]
		out[2*i+1] = digits[c&0x0f]
	}
	return string(out)
}
