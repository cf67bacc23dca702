// Package analysis implements the field-values auxiliary task: for a fixed
// set of packet types, it writes one TSV file per type listing the distinct
// values every inspected column takes among packets matching that type.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"github.com/zigator-go/zigator/internal/storage"
	"github.com/zigator-go/zigator/pkg/zigbee"
)

// ignoredColumns are excluded from the per-column distinct-value scan:
// per-packet identifiers and payload/counter fields whose cardinality
// would otherwise dominate every output file.
var ignoredColumns = map[string]bool{
	"nwk_aux_framecounter": true,
	"nwk_aux_decpayload":   true,
	"aps_counter":          true,
	"aps_aux_framecounter": true,
	"aps_aux_decpayload":   true,
}

// inspectedColumns is the canonical column order minus ignoredColumns,
// computed once since zigbee.ColumnOrder never changes at runtime.
func inspectedColumns() []string {
	all := zigbee.ColumnOrder()
	out := make([]string, 0, len(all))
	for _, col := range all {
		if !ignoredColumns[col] {
			out = append(out, col)
		}
	}
	return out
}

// packetType names one output file and the conditions a packets row must
// satisfy to count toward it.
type packetType struct {
	filename   string
	conditions []storage.Condition
}

func cond(column, value string) storage.Condition {
	return storage.Condition{Column: column, Value: &value}
}

func condNull(column string) storage.Condition {
	return storage.Condition{Column: column, Value: nil}
}

// packetTypes is the fixed table of packet types this task reports on, one
// row per MAC/NWK/APS frame kind that carries a command or frame-type
// identity worth breaking out on its own.
var packetTypes = []packetType{
	{"mac_acknowledgment.tsv", []storage.Condition{condNull("error_msg"), cond("mac_frametype", "0b010: MAC Acknowledgment")}},
	{"mac_beacon.tsv", []storage.Condition{condNull("error_msg"), cond("mac_frametype", "0b000: MAC Beacon")}},
	{"mac_assocreq.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x01: MAC Association Request")}},
	{"mac_assocrsp.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x02: MAC Association Response")}},
	{"mac_disassoc.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x03: MAC Disassociation Notification")}},
	{"mac_datareq.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x04: MAC Data Request")}},
	{"mac_conflictnotif.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x05: MAC PAN ID Conflict Notification")}},
	{"mac_orphannotif.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x06: MAC Orphan Notification")}},
	{"mac_beaconreq.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x07: MAC Beacon Request")}},
	{"mac_realign.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x08: MAC Coordinator Realignment")}},
	{"mac_gtsreq.tsv", []storage.Condition{condNull("error_msg"), cond("mac_cmd_id", "0x09: MAC GTS Request")}},
	{"nwk_routerequest.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x01: NWK Route Request")}},
	{"nwk_routereply.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x02: NWK Route Reply")}},
	{"nwk_networkstatus.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x03: NWK Network Status")}},
	{"nwk_leave.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x04: NWK Leave")}},
	{"nwk_routerecord.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x05: NWK Route Record")}},
	{"nwk_rejoinreq.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x06: NWK Rejoin Request")}},
	{"nwk_rejoinrsp.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x07: NWK Rejoin Response")}},
	{"nwk_linkstatus.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x08: NWK Link Status")}},
	{"nwk_networkreport.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x09: NWK Network Report")}},
	{"nwk_networkupdate.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x0a: NWK Network Update")}},
	{"nwk_edtimeoutreq.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x0b: NWK End Device Timeout Request")}},
	{"nwk_edtimeoutrsp.tsv", []storage.Condition{condNull("error_msg"), cond("nwk_cmd_id", "0x0c: NWK End Device Timeout Response")}},
	{"aps_acknowledgment.tsv", []storage.Condition{condNull("error_msg"), cond("aps_frametype", "0b10: APS Acknowledgment")}},
	{"aps_transportkey.tsv", []storage.Condition{condNull("error_msg"), cond("aps_cmd_id", "0x05: APS Transport Key")}},
	{"aps_updatedevice.tsv", []storage.Condition{condNull("error_msg"), cond("aps_cmd_id", "0x06: APS Update Device")}},
	{"aps_removedevice.tsv", []storage.Condition{condNull("error_msg"), cond("aps_cmd_id", "0x07: APS Remove Device")}},
	{"aps_requestkey.tsv", []storage.Condition{condNull("error_msg"), cond("aps_cmd_id", "0x08: APS Request Key")}},
	{"aps_switchkey.tsv", []storage.Condition{condNull("error_msg"), cond("aps_cmd_id", "0x09: APS Switch Key")}},
	{"aps_tunnel.tsv", []storage.Condition{condNull("error_msg"), cond("aps_cmd_id", "0x0e: APS Tunnel")}},
	{"aps_verifykey.tsv", []storage.Condition{condNull("error_msg"), cond("aps_cmd_id", "0x0f: APS Verify Key")}},
	{"aps_confirmkey.tsv", []storage.Condition{condNull("error_msg"), cond("aps_cmd_id", "0x10: APS Confirm Key")}},
}

// Run computes, for each packetType, the distinct values of every
// inspected column among matching rows, and writes one TSV file per type
// into outDir. Packet types are scheduled pull-style across numWorkers
// goroutines sharing one atomic task index, mirroring the original
// analyzer's multiprocessing worker pool.
func Run(ctx context.Context, store storage.Store, outDir string, numWorkers int, log zerolog.Logger) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("analysis: create output dir: %w", err)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	cols := inspectedColumns()
	var taskIndex uint64

	log.Info().Int("packet_types", len(packetTypes)).Int("workers", numWorkers).
		Msg("computing distinct field values")

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < numWorkers; w++ {
		g.Go(func() error {
			for {
				i := atomic.AddUint64(&taskIndex, 1) - 1
				if i >= uint64(len(packetTypes)) {
					return nil
				}
				if err := writeOneFile(gctx, store, packetTypes[i], cols, outDir); err != nil {
					return err
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Int("workers", numWorkers).Msg("all field-values workers completed their tasks")
	return nil
}

func writeOneFile(ctx context.Context, store storage.Store, pt packetType, cols []string, outDir string) error {
	rows := make([][]string, 0, len(cols))
	for _, col := range cols {
		values, err := store.DistinctColumnValues(ctx, col, pt.conditions)
		if err != nil {
			return fmt.Errorf("analysis: fetch %s for %s: %w", col, pt.filename, err)
		}
		sort.Slice(values, func(i, j int) bool { return lessColumnValue(values[i], values[j]) })

		row := make([]string, 0, len(values)+2)
		row = append(row, col)
		for _, v := range values {
			row = append(row, renderValue(v))
		}
		row = append(row, strconv.Itoa(len(values)))
		rows = append(rows, row)
	}
	return writeTSV(filepath.Join(outDir, pt.filename), rows)
}

func renderValue(v storage.ColumnValue) string {
	if !v.Valid {
		return "None"
	}
	return v.Value
}

// writeTSV writes each row as comma-separated values followed by one tab
// and the trailing count, matching the original analyzer's output format.
func writeTSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("analysis: create %s: %w", path, err)
	}
	defer f.Close()

	for _, row := range rows {
		count := row[len(row)-1]
		values := row[:len(row)-1]
		if _, err := fmt.Fprintf(f, "%s\t%s\n", strings.Join(values, ", "), count); err != nil {
			return err
		}
	}
	return nil
}

// lessColumnValue implements the custom sort: NULL first, then by the
// numeric value of any leading "0x"/"0b" prefix (or plain leading decimal
// digits), then lexicographically.
func lessColumnValue(a, b storage.ColumnValue) bool {
	if a.Valid != b.Valid {
		return !a.Valid
	}
	if !a.Valid {
		return false
	}

	av, aok := leadingNumericPrefix(a.Value)
	bv, bok := leadingNumericPrefix(b.Value)
	switch {
	case aok && bok && av != bv:
		return av < bv
	case aok != bok:
		return aok
	default:
		return a.Value < b.Value
	}
}

func leadingNumericPrefix(s string) (uint64, bool) {
	switch {
	case strings.HasPrefix(s, "0x"):
		end := 2
		for end < len(s) && isHexDigit(s[end]) {
			end++
		}
		if end == 2 {
			return 0, false
		}
		v, err := strconv.ParseUint(s[2:end], 16, 64)
		return v, err == nil
	case strings.HasPrefix(s, "0b"):
		end := 2
		for end < len(s) && (s[end] == '0' || s[end] == '1') {
			end++
		}
		if end == 2 {
			return 0, false
		}
		v, err := strconv.ParseUint(s[2:end], 2, 64)
		return v, err == nil
	default:
		end := 0
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end == 0 {
			return 0, false
		}
		v, err := strconv.ParseUint(s[:end], 10, 64)
		return v, err == nil
	}
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
