package storage

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/zigator-go/zigator/internal/models"
)

// ========== Address ==========

// UpsertAddress writes addr if the (short, panid, extended) triple hasn't
// been seen before. Already-seen triples are a silent no-op: the table is
// monotonic, rows are never retracted or rewritten.
func (s *sqlStore) UpsertAddress(ctx context.Context, addr models.Address) error {
	query := "INSERT INTO addresses (short_addr, panid, extended_addr) SELECT " +
		s.bindvar(1) + ", " + s.bindvar(2) + ", " + s.bindvar(3) +
		" WHERE NOT EXISTS (SELECT 1 FROM addresses WHERE short_addr = " + s.bindvar(4) +
		" AND panid = " + s.bindvar(5) + " AND extended_addr = " + s.bindvar(6) + ")"
	_, err := s.conn().ExecContext(ctx, query,
		addr.Short, addr.PANID, addr.Extended,
		addr.Short, addr.PANID, addr.Extended,
	)
	return err
}

func (s *sqlStore) ListAddresses(ctx context.Context) ([]models.Address, error) {
	rows, err := s.conn().QueryContext(ctx, "SELECT short_addr, panid, extended_addr FROM addresses")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Address
	for rows.Next() {
		var a models.Address
		if err := rows.Scan(&a.Short, &a.PANID, &a.Extended); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ========== Device ==========

// UpsertDevice merges macDeviceType/nwkDeviceType into the row for
// extended. A field already assigned a non-empty value keeps it; an
// incoming empty string never overwrites a previously assigned one.
func (s *sqlStore) UpsertDevice(ctx context.Context, extended, macDeviceType, nwkDeviceType string) error {
	var existingMAC, existingNWK string
	err := s.conn().QueryRowContext(ctx,
		"SELECT mac_device_type, nwk_device_type FROM devices WHERE extended_addr = "+s.bindvar(1),
		extended,
	).Scan(&existingMAC, &existingNWK)

	switch {
	case err == sql.ErrNoRows:
		_, err = s.conn().ExecContext(ctx,
			"INSERT INTO devices (extended_addr, mac_device_type, nwk_device_type) VALUES ("+
				s.bindvar(1)+", "+s.bindvar(2)+", "+s.bindvar(3)+")",
			extended, macDeviceType, nwkDeviceType,
		)
		return err
	case err != nil:
		return err
	}

	if existingMAC == "" && macDeviceType != "" {
		existingMAC = macDeviceType
	}
	if existingNWK == "" && nwkDeviceType != "" {
		existingNWK = nwkDeviceType
	}

	_, err = s.conn().ExecContext(ctx,
		"UPDATE devices SET mac_device_type = "+s.bindvar(1)+", nwk_device_type = "+s.bindvar(2)+
			" WHERE extended_addr = "+s.bindvar(3),
		existingMAC, existingNWK, extended,
	)
	return err
}

func (s *sqlStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.conn().QueryContext(ctx, "SELECT extended_addr, mac_device_type, nwk_device_type FROM devices")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.Extended, &d.MACDeviceType, &d.NWKDeviceType); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ========== Network ==========

// UpsertNetwork adds shortPANID to the sorted, comma-joined set bound to
// extendedPANID, inserting a fresh row if this is the first sighting.
func (s *sqlStore) UpsertNetwork(ctx context.Context, extendedPANID, shortPANID string) error {
	var existing string
	err := s.conn().QueryRowContext(ctx,
		"SELECT short_panids FROM networks WHERE extended_panid = "+s.bindvar(1),
		extendedPANID,
	).Scan(&existing)

	switch {
	case err == sql.ErrNoRows:
		_, err = s.conn().ExecContext(ctx,
			"INSERT INTO networks (extended_panid, short_panids) VALUES ("+s.bindvar(1)+", "+s.bindvar(2)+")",
			extendedPANID, shortPANID,
		)
		return err
	case err != nil:
		return err
	}

	set := map[string]struct{}{}
	if existing != "" {
		for _, id := range strings.Split(existing, ",") {
			set[id] = struct{}{}
		}
	}
	set[shortPANID] = struct{}{}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	_, err = s.conn().ExecContext(ctx,
		"UPDATE networks SET short_panids = "+s.bindvar(1)+" WHERE extended_panid = "+s.bindvar(2),
		strings.Join(ids, ","), extendedPANID,
	)
	return err
}

func (s *sqlStore) ListNetworks(ctx context.Context) ([]models.Network, error) {
	rows, err := s.conn().QueryContext(ctx, "SELECT extended_panid, short_panids FROM networks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Network
	for rows.Next() {
		var n models.Network
		if err := rows.Scan(&n.ExtendedPANID, &n.ShortPANIDs); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ========== Pair ==========

// UpsertPair widens the [first_seen, last_seen] window for
// (srcShort, dstShort, panid) to include seenAt (a Unix timestamp).
func (s *sqlStore) UpsertPair(ctx context.Context, srcShort, dstShort, panid string, seenAt int64) error {
	var first, last int64
	err := s.conn().QueryRowContext(ctx,
		"SELECT first_seen, last_seen FROM pairs WHERE src_short = "+s.bindvar(1)+
			" AND dst_short = "+s.bindvar(2)+" AND panid = "+s.bindvar(3),
		srcShort, dstShort, panid,
	).Scan(&first, &last)

	switch {
	case err == sql.ErrNoRows:
		_, err = s.conn().ExecContext(ctx,
			"INSERT INTO pairs (src_short, dst_short, panid, first_seen, last_seen) VALUES ("+
				s.bindvar(1)+", "+s.bindvar(2)+", "+s.bindvar(3)+", "+s.bindvar(4)+", "+s.bindvar(5)+")",
			srcShort, dstShort, panid, seenAt, seenAt,
		)
		return err
	case err != nil:
		return err
	}

	if seenAt < first {
		first = seenAt
	}
	if seenAt > last {
		last = seenAt
	}

	_, err = s.conn().ExecContext(ctx,
		"UPDATE pairs SET first_seen = "+s.bindvar(1)+", last_seen = "+s.bindvar(2)+
			" WHERE src_short = "+s.bindvar(3)+" AND dst_short = "+s.bindvar(4)+" AND panid = "+s.bindvar(5),
		first, last, srcShort, dstShort, panid,
	)
	return err
}

func (s *sqlStore) ListPairs(ctx context.Context) ([]models.Pair, error) {
	rows, err := s.conn().QueryContext(ctx, "SELECT src_short, dst_short, panid, first_seen, last_seen FROM pairs")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Pair
	for rows.Next() {
		var p models.Pair
		var first, last int64
		if err := rows.Scan(&p.SrcShort, &p.DstShort, &p.PANID, &first, &last); err != nil {
			return nil, err
		}
		p.FirstSeen = time.Unix(first, 0).UTC()
		p.LastSeen = time.Unix(last, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// ========== Run ==========

func (s *sqlStore) CreateRun(ctx context.Context, run models.Run) error {
	_, err := s.conn().ExecContext(ctx,
		"INSERT INTO runs (id, started_at, finished_at, input_files, files_parsed, packet_count, error_counts) VALUES ("+
			s.bindvar(1)+", "+s.bindvar(2)+", "+s.bindvar(3)+", "+s.bindvar(4)+", "+s.bindvar(5)+", "+s.bindvar(6)+", "+s.bindvar(7)+")",
		run.ID, run.StartedAt, run.FinishedAt, run.InputFiles, run.FilesParsed, run.PacketCount, run.ErrorCounts,
	)
	return err
}

// ========== SniffedKey ==========

// InsertSniffedKey records provenance for a newly sniffed key. A duplicate
// name is silently ignored, matching the KeyRing's own first-wins dedupe.
func (s *sqlStore) InsertSniffedKey(ctx context.Context, key models.SniffedKey) error {
	query := "INSERT INTO sniffed_keys (name, key_bytes, source_pkt_file, source_pkt_num) SELECT " +
		s.bindvar(1) + ", " + s.bindvar(2) + ", " + s.bindvar(3) + ", " + s.bindvar(4) +
		" WHERE NOT EXISTS (SELECT 1 FROM sniffed_keys WHERE name = " + s.bindvar(5) + ")"
	_, err := s.conn().ExecContext(ctx, query,
		key.Name, key.Bytes, key.SourcePktFile, key.SourcePktNum, key.Name,
	)
	return err
}

func (s *sqlStore) ListSniffedKeys(ctx context.Context) ([]models.SniffedKey, error) {
	rows, err := s.conn().QueryContext(ctx, "SELECT name, key_bytes, source_pkt_file, source_pkt_num FROM sniffed_keys")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SniffedKey
	for rows.Next() {
		var k models.SniffedKey
		if err := rows.Scan(&k.Name, &k.Bytes, &k.SourcePktFile, &k.SourcePktNum); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
