// Package inference implements the corpus-wide post-pass that joins staged
// records into the derived address, device, network, and pair tables, and
// feeds any trust-center keys it recovers back into a second decode pass.
package inference

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zigator-go/zigator/internal/eventbus"
	"github.com/zigator-go/zigator/internal/models"
	"github.com/zigator-go/zigator/internal/storage"
	"github.com/zigator-go/zigator/internal/worker"
	"github.com/zigator-go/zigator/pkg/keyring"
	"github.com/zigator-go/zigator/pkg/zigbee"
)

func cond(column, value string) storage.Condition {
	return storage.Condition{Column: column, Value: &value}
}

func condNull(column string) storage.Condition {
	return storage.Condition{Column: column, Value: nil}
}

type sniffedKeyEvent struct {
	Name          string `json:"name"`
	SourcePktFile string `json:"source_pkt_file"`
	SourcePktNum  int    `json:"source_pkt_num"`
}

type phaseEvent struct {
	Phase string `json:"phase"`
	Rows  int    `json:"rows"`
}

// FinalizeCorpus flushes every staged capture file's records into store
// inside one transaction, then runs the four inference phases from
// spec.md §4.6 against the now-persisted packets table, and finally writes
// a models.Run summary row. ring and sec are the KeyRing/SecurityStage the
// corpus was parsed with; phase 1 mutates ring in place (via
// AddSniffedNetworkKey/AddSniffedLinkKey) and, since sec.Ring is the same
// pointer, a second BuildRecord pass over undecryptable records
// transparently picks up the newly sniffed keys.
func FinalizeCorpus(ctx context.Context, store storage.Store, ring *keyring.KeyRing, sec *zigbee.SecurityStage, staged []worker.StagedFile, runID string, bus *eventbus.Bus, log zerolog.Logger) (models.Run, error) {
	startedAt := time.Now().UTC()
	cols := zigbee.ColumnOrder()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		return models.Run{}, fmt.Errorf("inference: begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	packetCount := 0
	errorCounts := map[string]int{}
	for _, sf := range staged {
		for _, rec := range sf.Records {
			if err := tx.InsertPacket(ctx, cols, rec); err != nil {
				return models.Run{}, fmt.Errorf("inference: insert packet from %s: %w", sf.Path, err)
			}
			packetCount++
			if rec.ErrorMsg != "" {
				errorCounts[rec.ErrorMsg]++
			}
		}
	}
	log.Info().Int("packets", packetCount).Int("files", len(staged)).Msg("flushed staged records to store")

	var sniffed []models.SniffedKey
	if err := sniffKeys(ctx, tx, ring, &sniffed); err != nil {
		return models.Run{}, fmt.Errorf("inference: sniffed-key phase: %w", err)
	}
	if len(sniffed) > 0 {
		fixed, err := redecodeUndecryptable(ctx, tx, sec, cols, errorCounts, log)
		if err != nil {
			return models.Run{}, fmt.Errorf("inference: re-decode pass: %w", err)
		}
		log.Info().Int("sniffed_keys", len(sniffed)).Int("records_redecoded", fixed).Msg("re-ran sniffed-key decode pass")
	}
	log.Info().Int("rows", len(sniffed)).Msg("completed phase 1 (sniffed keys)")

	epidRows, err := discoverEPIDs(ctx, tx)
	if err != nil {
		return models.Run{}, fmt.Errorf("inference: EPID discovery: %w", err)
	}
	log.Info().Int("rows", epidRows).Msg("completed phase 2 (EPID discovery)")

	addrDevRows, err := discoverAddressesAndDevices(ctx, tx)
	if err != nil {
		return models.Run{}, fmt.Errorf("inference: address/device discovery: %w", err)
	}
	log.Info().Int("rows", addrDevRows).Msg("completed phase 3 (address & device discovery)")

	pairRows, err := discoverPairs(ctx, tx)
	if err != nil {
		return models.Run{}, fmt.Errorf("inference: pair-flow discovery: %w", err)
	}
	log.Info().Int("rows", pairRows).Msg("completed phase 4 (pair flows)")

	inputFiles := make([]string, len(staged))
	for i, sf := range staged {
		inputFiles[i] = sf.Path
	}

	run := models.Run{
		ID:          runID,
		StartedAt:   startedAt,
		FinishedAt:  time.Now().UTC(),
		InputFiles:  strings.Join(inputFiles, "\n"),
		FilesParsed: len(staged),
		PacketCount: packetCount,
		ErrorCounts: renderErrorCounts(errorCounts),
	}
	if err := tx.CreateRun(ctx, run); err != nil {
		return models.Run{}, fmt.Errorf("inference: create run record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Run{}, fmt.Errorf("inference: commit finalize transaction: %w", err)
	}
	committed = true

	for _, k := range sniffed {
		bus.Publish("zigator.keys.sniffed", sniffedKeyEvent{Name: k.Name, SourcePktFile: k.SourcePktFile, SourcePktNum: k.SourcePktNum})
	}
	for _, p := range []phaseEvent{
		{"sniffed_keys", len(sniffed)},
		{"epid_discovery", epidRows},
		{"address_device_discovery", addrDevRows},
		{"pair_flows", pairRows},
	} {
		bus.Publish("zigator.inference.phase", p)
	}

	for code, count := range errorCounts {
		log.Warn().Str("code", code).Int("count", count).Msgf("generated %d %q parsing errors", count, code)
	}

	return run, nil
}

// sniffKeys scans every decrypted APS Transport Key record carrying a
// Standard Network Key or Trust Center Link Key, adds any key not already
// in ring, and appends a provenance record to sniffed for each addition.
func sniffKeys(ctx context.Context, store storage.Store, ring *keyring.KeyRing, sniffed *[]models.SniffedKey) error {
	conditions := []storage.Condition{
		condNull("error_msg"),
		cond("aps_cmd_id", "0x05: APS Transport Key"),
	}
	projection := []string{"pkt_num", "pcap_filename", "aps_transportkey_type", "aps_transportkey_key"}

	return store.ScanPackets(ctx, projection, conditions, func(row map[string]string) error {
		keyHex, ok := row["aps_transportkey_key"]
		if !ok {
			return nil
		}
		keyBytes, err := parseKeyHex(keyHex)
		if err != nil {
			return nil
		}

		pktNum, _ := strconv.Atoi(row["pkt_num"])
		name := fmt.Sprintf("_sniffed_%x", keyBytes)

		var added bool
		switch row["aps_transportkey_type"] {
		case "0x01: Network Key":
			added = ring.AddSniffedNetworkKey(name, keyBytes)
		case "0x04: Trust Center Link Key":
			added = ring.AddSniffedLinkKey(name, keyBytes)
		default:
			return nil
		}
		if !added {
			return nil
		}

		if err := store.InsertSniffedKey(ctx, models.SniffedKey{
			Name:          name,
			Bytes:         keyBytes[:],
			SourcePktFile: row["pcap_filename"],
			SourcePktNum:  pktNum,
		}); err != nil {
			return err
		}
		*sniffed = append(*sniffed, models.SniffedKey{Name: name, Bytes: keyBytes[:], SourcePktFile: row["pcap_filename"], SourcePktNum: pktNum})
		return nil
	})
}

// redecodeUndecryptable re-runs BuildRecord over every record whose
// warning_msg indicated an undecryptable NWK or APS payload, now that sec's
// KeyRing may hold newly sniffed keys, and writes back any record whose
// outcome changed.
func redecodeUndecryptable(ctx context.Context, store storage.Store, sec *zigbee.SecurityStage, cols []string, errorCounts map[string]int, log zerolog.Logger) (int, error) {
	fixed := 0
	for _, warning := range []string{zigbee.WarnUndecryptableNWK, zigbee.WarnUndecryptableAPS} {
		conditions := []storage.Condition{cond("warning_msg", warning)}
		projection := []string{"pkt_num", "pcap_filename", "pkt_bytes"}

		var rows []map[string]string
		if err := store.ScanPackets(ctx, projection, conditions, func(row map[string]string) error {
			rows = append(rows, row)
			return nil
		}); err != nil {
			return fixed, err
		}

		for _, row := range rows {
			raw, err := hex.DecodeString(row["pkt_bytes"])
			if err != nil {
				continue
			}
			pktNum, _ := strconv.Atoi(row["pkt_num"])

			frame := zigbee.BuildRecord(raw, sec)
			if frame.WarningMsg == warning {
				continue // still undecryptable, nothing changed
			}

			values := make(map[string]string, len(frame.Values())+1)
			for _, col := range cols {
				if v, ok := frame.Get(col); ok {
					values[col] = v
				}
			}
			values["pcap_filename"] = row["pcap_filename"]

			rec := storage.PacketRecord{
				ErrorMsg:   frame.ErrorMsg,
				WarningMsg: frame.WarningMsg,
				Values:     values,
			}
			if err := store.UpdatePacket(ctx, cols, pktNum, rec); err != nil {
				return fixed, err
			}
			if frame.ErrorMsg != "" {
				errorCounts[frame.ErrorMsg]++
			}
			fixed++
			log.Debug().Int("pkt_num", pktNum).Str("file", row["pcap_filename"]).Msg("record recovered after sniffed-key re-decode")
		}
	}
	return fixed, nil
}

// discoverEPIDs binds PAN ids to EPIDs from beacons and the two NWK
// commands that carry an EPID, writing one Network upsert per binding.
func discoverEPIDs(ctx context.Context, store storage.Store) (int, error) {
	sources := []struct {
		epidColumn string
		conditions []storage.Condition
	}{
		{"mac_beacon_epid", []storage.Condition{condNull("error_msg"), cond("mac_frametype", "0b000: MAC Beacon")}},
		{"nwk_netreport_epid", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x09: NWK Network Report")}},
		{"nwk_netupdate_epid", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x0a: NWK Network Update")}},
	}

	rows := 0
	for _, src := range sources {
		projection := []string{"mac_srcpanid", src.epidColumn}
		err := store.ScanPackets(ctx, projection, src.conditions, func(row map[string]string) error {
			panid, havePanid := row["mac_srcpanid"]
			epid, haveEPID := row[src.epidColumn]
			if !havePanid || !haveEPID {
				return nil
			}
			rows++
			return store.UpsertNetwork(ctx, epid, panid)
		})
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

// discoverAddressesAndDevices writes one Address row for every (short,
// panid, extended) triple a record exposes at either MAC or NWK layer, and
// merges device-type attributions from MAC Association Request and NWK
// Rejoin Request command frames.
func discoverAddressesAndDevices(ctx context.Context, store storage.Store) (int, error) {
	rows := 0

	macPairs := []struct{ short, extended, panid string }{
		{"mac_srcshortaddr", "mac_srcextendedaddr", "mac_srcpanid"},
		{"mac_dstshortaddr", "mac_dstextendedaddr", "mac_dstpanid"},
	}
	nwkPairs := []struct{ short, extended string }{
		{"nwk_srcshortaddr", "nwk_srcextendedaddr"},
		{"nwk_dstshortaddr", "nwk_dstextendedaddr"},
	}

	baseProjection := []string{
		"mac_srcshortaddr", "mac_srcextendedaddr", "mac_srcpanid",
		"mac_dstshortaddr", "mac_dstextendedaddr", "mac_dstpanid",
		"nwk_srcshortaddr", "nwk_srcextendedaddr",
		"nwk_dstshortaddr", "nwk_dstextendedaddr",
	}
	err := store.ScanPackets(ctx, baseProjection, []storage.Condition{condNull("error_msg")}, func(row map[string]string) error {
		for _, p := range macPairs {
			short, hasShort := row[p.short]
			extended, hasExtended := row[p.extended]
			panid, hasPanid := row[p.panid]
			if hasShort && hasExtended && hasPanid {
				if err := store.UpsertAddress(ctx, models.Address{Short: short, PANID: panid, Extended: extended}); err != nil {
					return err
				}
				rows++
			}
		}

		panid, hasPanid := row["mac_dstpanid"]
		if !hasPanid {
			panid, hasPanid = row["mac_srcpanid"]
		}
		if hasPanid {
			for _, p := range nwkPairs {
				short, hasShort := row[p.short]
				extended, hasExtended := row[p.extended]
				if hasShort && hasExtended {
					if err := store.UpsertAddress(ctx, models.Address{Short: short, PANID: panid, Extended: extended}); err != nil {
						return err
					}
					rows++
				}
			}
		}
		return nil
	})
	if err != nil {
		return rows, err
	}

	devSources := []struct {
		extendedColumn string
		devTypeColumn  string
		isMAC          bool
		conditions     []storage.Condition
	}{
		{"mac_srcextendedaddr", "mac_assocreq_devtype", true,
			[]storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x01: MAC Association Request")}},
		{"nwk_srcextendedaddr", "nwk_rejoinreq_devtype", false,
			[]storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x06: NWK Rejoin Request")}},
	}
	for _, src := range devSources {
		projection := []string{src.extendedColumn, src.devTypeColumn, "mac_srcextendedaddr"}
		err := store.ScanPackets(ctx, projection, src.conditions, func(row map[string]string) error {
			extended, ok := row[src.extendedColumn]
			if !ok {
				extended, ok = row["mac_srcextendedaddr"]
			}
			devType, haveDevType := row[src.devTypeColumn]
			if !ok || !haveDevType {
				return nil
			}
			rows++
			if src.isMAC {
				return store.UpsertDevice(ctx, extended, devType, "")
			}
			return store.UpsertDevice(ctx, extended, "", devType)
		})
		if err != nil {
			return rows, err
		}
	}

	return rows, nil
}

// discoverPairs widens the first/last-seen window for every
// (src_short, dst_short, panid) triple observed on a MAC Data frame.
func discoverPairs(ctx context.Context, store storage.Store) (int, error) {
	projection := []string{"mac_srcshortaddr", "mac_dstshortaddr", "mac_dstpanid", "mac_srcpanid", "pkt_time"}
	conditions := []storage.Condition{condNull("error_msg"), cond("mac_frametype", "0b001: MAC Data")}

	rows := 0
	err := store.ScanPackets(ctx, projection, conditions, func(row map[string]string) error {
		src, hasSrc := row["mac_srcshortaddr"]
		dst, hasDst := row["mac_dstshortaddr"]
		if !hasSrc || !hasDst {
			return nil
		}
		panid, hasPanid := row["mac_dstpanid"]
		if !hasPanid {
			panid, hasPanid = row["mac_srcpanid"]
		}
		if !hasPanid {
			return nil
		}
		seenAt, err := strconv.ParseFloat(row["pkt_time"], 64)
		if err != nil {
			return nil
		}
		rows++
		return store.UpsertPair(ctx, src, dst, panid, int64(seenAt))
	})
	return rows, err
}

func parseKeyHex(s string) ([16]byte, error) {
	var out [16]byte
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 32 {
		return out, fmt.Errorf("inference: unexpected key hex length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func renderErrorCounts(counts map[string]int) string {
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%s=%d", code, counts[code]))
	}
	return strings.Join(parts, ",")
}
