package inference

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zigator-go/zigator/internal/config"
	"github.com/zigator-go/zigator/internal/eventbus"
	"github.com/zigator-go/zigator/internal/storage"
	"github.com/zigator-go/zigator/internal/worker"
	"github.com/zigator-go/zigator/pkg/keyring"
	"github.com/zigator-go/zigator/pkg/zigbee"
)

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "zigator_test.db")
	store, err := storage.Open("sqlite3", dsn, 1, 1)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func macDataRecord(src, dst, panid string, pktTime float64) storage.PacketRecord {
	return storage.PacketRecord{
		PktTime: pktTime,
		Values: map[string]string{
			"mac_frametype":    "0b001: MAC Data",
			"mac_srcshortaddr": src,
			"mac_dstshortaddr": dst,
			"mac_dstpanid":     panid,
			"pcap_filename":    "test.pcap",
		},
	}
}

// TestFinalizeCorpusDiscoversPairFlowsAndWidensWindow exercises phase 4
// directly: two MAC Data frames between the same (src, dst, panid) at
// different times must collapse into one pair row whose window spans both
// timestamps, matching the pair-table determinism property.
func TestFinalizeCorpusDiscoversPairFlowsAndWidensWindow(t *testing.T) {
	store := openTestStore(t)
	ring := keyring.New()
	sec := zigbee.NewSecurityStage(ring, false)
	bus, _ := eventbus.Connect(config.NATSConfig{}, zerolog.Nop())

	staged := []worker.StagedFile{{
		Path: "test.pcap",
		Records: []storage.PacketRecord{
			macDataRecord("0x1111", "0x2222", "0xabcd", 100),
			macDataRecord("0x1111", "0x2222", "0xabcd", 50),
			macDataRecord("0x1111", "0x2222", "0xabcd", 200),
			macDataRecord("0x3333", "0x4444", "0xabcd", 75),
		},
	}}

	run, err := FinalizeCorpus(context.Background(), store, ring, sec, staged, "run-1", bus, zerolog.Nop())
	if err != nil {
		t.Fatalf("FinalizeCorpus: %v", err)
	}
	if run.PacketCount != 4 {
		t.Fatalf("got PacketCount %d, want 4", run.PacketCount)
	}

	pairs, err := store.ListPairs(context.Background())
	if err != nil {
		t.Fatalf("ListPairs: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}

	var found bool
	for _, p := range pairs {
		if p.SrcShort == "0x1111" && p.DstShort == "0x2222" && p.PANID == "0xabcd" {
			found = true
			if p.FirstSeen.Unix() != 50 || p.LastSeen.Unix() != 200 {
				t.Fatalf("unexpected window: %+v", p)
			}
		}
	}
	if !found {
		t.Fatal("expected a pair row for (0x1111, 0x2222, 0xabcd)")
	}
}

// TestFinalizeCorpusDiscoversEPIDsAndAddresses exercises phases 2 and 3: a
// beacon binds a PAN id to an EPID, and an association request binds a
// short/extended address pair and attributes a MAC device type.
func TestFinalizeCorpusDiscoversEPIDsAndAddresses(t *testing.T) {
	store := openTestStore(t)
	ring := keyring.New()
	sec := zigbee.NewSecurityStage(ring, false)
	bus, _ := eventbus.Connect(config.NATSConfig{}, zerolog.Nop())

	staged := []worker.StagedFile{{
		Path: "test.pcap",
		Records: []storage.PacketRecord{
			{Values: map[string]string{
				"mac_frametype":  "0b000: MAC Beacon",
				"mac_srcpanid":   "0xabcd",
				"mac_beacon_epid": "0x0011223344556677",
				"pcap_filename":  "test.pcap",
			}},
			{Values: map[string]string{
				"mac_cmd_id":          "0x01: MAC Association Request",
				"mac_srcextendedaddr": "0x1122334455667788",
				"mac_srcshortaddr":    "0x9999",
				"mac_srcpanid":        "0xabcd",
				"mac_assocreq_devtype": "0x01: Full Function Device",
				"pcap_filename":       "test.pcap",
			}},
		},
	}}

	if _, err := FinalizeCorpus(context.Background(), store, ring, sec, staged, "run-2", bus, zerolog.Nop()); err != nil {
		t.Fatalf("FinalizeCorpus: %v", err)
	}

	networks, err := store.ListNetworks(context.Background())
	if err != nil {
		t.Fatalf("ListNetworks: %v", err)
	}
	if len(networks) != 1 || networks[0].ExtendedPANID != "0x0011223344556677" || networks[0].ShortPANIDs != "0xabcd" {
		t.Fatalf("unexpected networks: %+v", networks)
	}

	addrs, err := store.ListAddresses(context.Background())
	if err != nil {
		t.Fatalf("ListAddresses: %v", err)
	}
	if len(addrs) != 1 || addrs[0].Short != "0x9999" || addrs[0].Extended != "0x1122334455667788" {
		t.Fatalf("unexpected addresses: %+v", addrs)
	}

	devices, err := store.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].MACDeviceType != "0x01: Full Function Device" {
		t.Fatalf("unexpected devices: %+v", devices)
	}
}

// TestFinalizeCorpusSniffsNetworkKeyAndRedecodes reproduces phase 1: a
// decrypted APS Transport Key record carrying a Standard Network Key is
// added to the KeyRing under a _sniffed_ name, recorded with provenance,
// and triggers a re-decode pass over records still marked undecryptable.
func TestFinalizeCorpusSniffsNetworkKeyAndRedecodes(t *testing.T) {
	store := openTestStore(t)
	ring := keyring.New()
	sec := zigbee.NewSecurityStage(ring, false)
	bus, _ := eventbus.Connect(config.NATSConfig{}, zerolog.Nop())

	keyHex := "0102030405060708090a0b0c0d0e0f10"
	staged := []worker.StagedFile{{
		Path: "test.pcap",
		Records: []storage.PacketRecord{
			{
				Values: map[string]string{
					"aps_cmd_id":            "0x05: APS Transport Key",
					"aps_transportkey_type": "0x01: Network Key",
					"aps_transportkey_key":  "0x" + keyHex,
					"pcap_filename":         "test.pcap",
				},
			},
		},
	}}

	if _, err := FinalizeCorpus(context.Background(), store, ring, sec, staged, "run-3", bus, zerolog.Nop()); err != nil {
		t.Fatalf("FinalizeCorpus: %v", err)
	}

	keys, err := store.ListSniffedKeys(context.Background())
	if err != nil {
		t.Fatalf("ListSniffedKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d sniffed keys, want 1", len(keys))
	}
	if keys[0].SourcePktFile != "test.pcap" {
		t.Fatalf("unexpected provenance: %+v", keys[0])
	}

	candidates := ring.Candidates(keyring.KeyTypeNetworkKey, false)
	if len(candidates) != 1 {
		t.Fatalf("got %d ring candidates, want 1", len(candidates))
	}
}
