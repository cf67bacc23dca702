package models

import "time"

// Address is a corpus-global (short, panid, extended) triple. The triple is
// unique; once emitted for a given pass it is never retracted, even if a
// later record shows the same short address bound to a different extended
// address under the same PAN (that produces a second row, not a mutation).
type Address struct {
	Short    string `db:"short_addr"`
	PANID    string `db:"panid"`
	Extended string `db:"extended_addr"`
}

// Device tracks the two device-type classifications the MAC and NWK layers
// each expose for a given extended address. Either field may stay empty;
// once assigned, a field keeps its first non-empty value: later values
// neither replace it nor clear it.
type Device struct {
	Extended      string `db:"extended_addr"`
	MACDeviceType string `db:"mac_device_type"`
	NWKDeviceType string `db:"nwk_device_type"`
}

// Network accumulates, per extended PAN id, the comma-joined sorted set of
// short PAN ids ever observed bound to it.
type Network struct {
	ExtendedPANID string `db:"extended_panid"`
	ShortPANIDs   string `db:"short_panids"`
}

// Pair records the first and last time a (src_short, dst_short, panid)
// triple was observed on a MAC Data frame.
type Pair struct {
	SrcShort  string    `db:"src_short"`
	DstShort  string    `db:"dst_short"`
	PANID     string    `db:"panid"`
	FirstSeen time.Time `db:"first_seen"`
	LastSeen  time.Time `db:"last_seen"`
}

// Run is one corpus-finalize execution: a provenance record of what was
// analyzed and a summary of the outcome, kept outside the pinned packets
// schema.
type Run struct {
	ID          string    `db:"id"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
	InputFiles  string    `db:"input_files"` // newline-joined, not normalized further
	FilesParsed int       `db:"files_parsed"`
	PacketCount int       `db:"packet_count"`
	ErrorCounts string    `db:"error_counts"` // "code=count" pairs, comma-joined
}

// SniffedKey is a provenance record for a key recovered by the inference
// engine's first phase: which capture file and packet number it came from,
// in addition to the plain name/bytes pair the KeyRing already holds.
type SniffedKey struct {
	Name          string `db:"name"`
	Bytes         []byte `db:"key_bytes"`
	SourcePktFile string `db:"source_pkt_file"`
	SourcePktNum  int    `db:"source_pkt_num"`
}
