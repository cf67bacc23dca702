package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/zigator-go/zigator/internal/models"
	"github.com/zigator-go/zigator/pkg/zigbee"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "zigator_test.db")
	store, err := Open("sqlite3", dsn, 1, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// packets is migrated with one dynamic column per zigbee.ColumnOrder()
// entry, minus the ones that already have a fixed typed column. This
// pins the schema generator against the duplicate-column bug: declaring
// pkt_time, phy_length, error_msg, or warning_msg a second time would make
// sqlite3 reject the CREATE TABLE statement and Open itself would fail.
func TestOpenMigratesPacketsSchemaWithoutDuplicateColumns(t *testing.T) {
	store := openTestStore(t)
	cols := zigbee.ColumnOrder()

	rec := PacketRecord{
		PktTime:   1.5,
		PktBytes:  "aabb",
		PhyLength: 2,
		MACFCSOK:  true,
		Values:    map[string]string{},
	}
	if len(cols) > 0 {
		rec.Values[cols[0]] = "probe"
	}
	if err := store.InsertPacket(context.Background(), cols, rec); err != nil {
		t.Fatalf("InsertPacket: %v", err)
	}
}

func TestInsertScanAndUpdatePacket(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	cols := []string{"mac_frametype", "mac_srcpanid"}

	if err := store.InsertPacket(ctx, cols, PacketRecord{
		PktTime:   1.0,
		PhyLength: 10,
		Values:    map[string]string{"mac_frametype": "0b001: MAC Data"},
	}); err != nil {
		t.Fatalf("InsertPacket: %v", err)
	}

	var rows []map[string]string
	err := store.ScanPackets(ctx, []string{"mac_frametype", "mac_srcpanid"}, nil, func(row map[string]string) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanPackets: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["mac_frametype"] != "0b001: MAC Data" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if _, ok := rows[0]["mac_srcpanid"]; ok {
		t.Fatalf("expected mac_srcpanid to be absent (NULL), got %+v", rows[0])
	}

	if err := store.UpdatePacket(ctx, cols, 1, PacketRecord{
		Values: map[string]string{"mac_frametype": "0b001: MAC Data", "mac_srcpanid": "0x1234"},
	}); err != nil {
		t.Fatalf("UpdatePacket: %v", err)
	}

	rows = nil
	err = store.ScanPackets(ctx, cols, nil, func(row map[string]string) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanPackets after update: %v", err)
	}
	if len(rows) != 1 || rows[0]["mac_srcpanid"] != "0x1234" {
		t.Fatalf("update did not take effect: %+v", rows)
	}
}

func TestScanPacketsConditionsFilterByEqualityAndNull(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	cols := []string{"mac_frametype"}

	if err := store.InsertPacket(ctx, cols, PacketRecord{Values: map[string]string{"mac_frametype": "a"}}); err != nil {
		t.Fatalf("InsertPacket: %v", err)
	}
	if err := store.InsertPacket(ctx, cols, PacketRecord{Values: map[string]string{}}); err != nil {
		t.Fatalf("InsertPacket: %v", err)
	}

	value := "a"
	var matched []map[string]string
	err := store.ScanPackets(ctx, cols, []Condition{{Column: "mac_frametype", Value: &value}}, func(row map[string]string) error {
		matched = append(matched, row)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanPackets equality: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("got %d matches, want 1", len(matched))
	}

	var nullRows []map[string]string
	err = store.ScanPackets(ctx, cols, []Condition{{Column: "mac_frametype", Value: nil}}, func(row map[string]string) error {
		nullRows = append(nullRows, row)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanPackets IS NULL: %v", err)
	}
	if len(nullRows) != 1 {
		t.Fatalf("got %d null rows, want 1", len(nullRows))
	}
}

func TestBeginTxCommitsAcrossDerivedTables(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.UpsertAddress(ctx, models.Address{Short: "0x1234", PANID: "0xabcd", Extended: "0x1122334455667788"}); err != nil {
		t.Fatalf("UpsertAddress: %v", err)
	}
	if err := tx.UpsertDevice(ctx, "0x1122334455667788", "0x01: MAC Association Request", ""); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	if err := tx.UpsertDevice(ctx, "0x1122334455667788", "", "nwk-router"); err != nil {
		t.Fatalf("UpsertDevice merge: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	addrs, err := store.ListAddresses(ctx)
	if err != nil {
		t.Fatalf("ListAddresses: %v", err)
	}
	if len(addrs) != 1 || addrs[0].Short != "0x1234" {
		t.Fatalf("unexpected addresses: %+v", addrs)
	}

	devices, err := store.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].MACDeviceType == "" || devices[0].NWKDeviceType != "nwk-router" {
		t.Fatalf("expected merged device type fields, got %+v", devices)
	}
}

func TestBeginTxRollbackDiscardsWrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.UpsertNetwork(ctx, "0xaabbccddeeff0011", "0x1234"); err != nil {
		t.Fatalf("UpsertNetwork: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	networks, err := store.ListNetworks(ctx)
	if err != nil {
		t.Fatalf("ListNetworks: %v", err)
	}
	if len(networks) != 0 {
		t.Fatalf("expected rollback to discard the write, got %+v", networks)
	}
}

func TestUpsertPairWidensWindow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.UpsertPair(ctx, "0x1111", "0x2222", "0xabcd", 100); err != nil {
		t.Fatalf("UpsertPair: %v", err)
	}
	if err := store.UpsertPair(ctx, "0x1111", "0x2222", "0xabcd", 50); err != nil {
		t.Fatalf("UpsertPair: %v", err)
	}
	if err := store.UpsertPair(ctx, "0x1111", "0x2222", "0xabcd", 200); err != nil {
		t.Fatalf("UpsertPair: %v", err)
	}

	pairs, err := store.ListPairs(ctx)
	if err != nil {
		t.Fatalf("ListPairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0].FirstSeen.Unix() != 50 || pairs[0].LastSeen.Unix() != 200 {
		t.Fatalf("unexpected window: %+v", pairs[0])
	}
}

func TestInsertSniffedKeyIgnoresDuplicateName(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	key := models.SniffedKey{Name: "_sniffed_aabb", Bytes: []byte{1, 2, 3}, SourcePktFile: "a.pcap", SourcePktNum: 1}
	if err := store.InsertSniffedKey(ctx, key); err != nil {
		t.Fatalf("InsertSniffedKey: %v", err)
	}
	dup := key
	dup.SourcePktFile = "b.pcap"
	if err := store.InsertSniffedKey(ctx, dup); err != nil {
		t.Fatalf("InsertSniffedKey duplicate: %v", err)
	}

	keys, err := store.ListSniffedKeys(ctx)
	if err != nil {
		t.Fatalf("ListSniffedKeys: %v", err)
	}
	if len(keys) != 1 || keys[0].SourcePktFile != "a.pcap" {
		t.Fatalf("expected first-wins on duplicate name, got %+v", keys)
	}
}
