package storage

import (
	"fmt"
	"strings"
)

const fixedSchema = `
CREATE TABLE IF NOT EXISTS addresses (
	short_addr    TEXT NOT NULL,
	panid         TEXT NOT NULL,
	extended_addr TEXT NOT NULL,
	PRIMARY KEY (short_addr, panid, extended_addr)
);

CREATE TABLE IF NOT EXISTS devices (
	extended_addr   TEXT PRIMARY KEY,
	mac_device_type TEXT NOT NULL DEFAULT '',
	nwk_device_type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS networks (
	extended_panid TEXT PRIMARY KEY,
	short_panids   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pairs (
	src_short  TEXT NOT NULL,
	dst_short  TEXT NOT NULL,
	panid      TEXT NOT NULL,
	first_seen BIGINT NOT NULL,
	last_seen  BIGINT NOT NULL,
	PRIMARY KEY (src_short, dst_short, panid)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMP NOT NULL,
	finished_at  TIMESTAMP,
	input_files  TEXT NOT NULL DEFAULT '',
	files_parsed INTEGER NOT NULL DEFAULT 0,
	packet_count INTEGER NOT NULL DEFAULT 0,
	error_counts TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sniffed_keys (
	name            TEXT PRIMARY KEY,
	key_bytes       BLOB NOT NULL,
	source_pkt_file TEXT NOT NULL DEFAULT '',
	source_pkt_num  INTEGER NOT NULL DEFAULT 0
);
`

// packetsCreateTable builds the CREATE TABLE IF NOT EXISTS statement for the
// packets table from cols, the same canonical column slice that drives
// RecordBuilder and the field-values task. Apart from the fixed typed
// columns pkt_num, pkt_time (DOUBLE PRECISION), phy_length (INTEGER) and
// mac_fcs_ok (BOOLEAN), every column is a nullable TEXT field; the schema
// carries no domain typing beyond what the decoder itself already enforces
// via enum rendering.
func packetsCreateTable(driver string, cols []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS packets (\n")
	if driver == "postgres" {
		b.WriteString("\tpkt_num SERIAL PRIMARY KEY,\n")
	} else {
		b.WriteString("\tpkt_num INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	}
	b.WriteString("\tpkt_time DOUBLE PRECISION,\n")
	b.WriteString("\tpkt_bytes TEXT,\n")
	b.WriteString("\tphy_length INTEGER,\n")
	b.WriteString("\tmac_fcs_ok BOOLEAN,\n")
	b.WriteString("\terror_msg TEXT,\n")
	b.WriteString("\twarning_msg TEXT")
	for _, col := range dynamicColumns(cols) {
		fmt.Fprintf(&b, ",\n\t%s TEXT", col)
	}
	b.WriteString("\n);")
	return b.String()
}

// migrate runs the fixed schema once at open time. There is no migration
// framework: every statement is CREATE TABLE IF NOT EXISTS, matching the
// teacher's pre-migrated-database assumption but inlined here since the
// packets schema is itself generated, not hand-maintained.
func (s *sqlStore) migrate(cols []string) error {
	statements := append(strings.Split(fixedSchema, ";\n\n"), packetsCreateTable(s.driver, cols))
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if !strings.HasSuffix(stmt, ";") {
			stmt += ";"
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
