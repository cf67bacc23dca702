package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PacketRecord is one row of the packets table: the fixed metadata columns
// every packet has regardless of decode outcome, plus whatever Frame column
// values the decoder managed to populate before stopping.
type PacketRecord struct {
	PktTime    float64
	PktBytes   string // raw PHY payload, hex-encoded
	PhyLength  int
	MACFCSOK   bool
	ErrorMsg   string
	WarningMsg string
	Values     map[string]string
}

// fixedColumns lists the packets-table columns ahead of the canonical
// zigbee column slice, in the same order schema.go's packetsCreateTable
// declares them (pkt_num is excluded, it's the auto-assigned primary key).
var fixedColumns = []string{"pkt_time", "pkt_bytes", "phy_length", "mac_fcs_ok", "error_msg", "warning_msg"}

// reservedDynamicColumns names the zigbee.ColumnOrder() entries that already
// have a fixed, typed column declared above (plus pkt_num, the auto-assigned
// primary key): schema.go must not declare a second column under the same
// name for these. Every other canonical column, including pcap_filename
// (which has no fixed counterpart), is declared dynamically as TEXT.
var reservedDynamicColumns = map[string]bool{
	"pkt_num":     true,
	"pkt_time":    true,
	"phy_length":  true,
	"error_msg":   true,
	"warning_msg": true,
}

// dynamicColumns filters cols (normally zigbee.ColumnOrder()) down to the
// columns schema.go's packetsCreateTable must declare itself, and that
// InsertPacket binds past the fixed arguments.
func dynamicColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !reservedDynamicColumns[c] {
			out = append(out, c)
		}
	}
	return out
}

func (r PacketRecord) fixedArgs() []interface{} {
	var errMsg, warnMsg interface{}
	if r.ErrorMsg != "" {
		errMsg = r.ErrorMsg
	}
	if r.WarningMsg != "" {
		warnMsg = r.WarningMsg
	}
	return []interface{}{r.PktTime, r.PktBytes, r.PhyLength, r.MACFCSOK, errMsg, warnMsg}
}

// InsertPacket writes one PacketRecord. cols fixes the zigbee-column order
// (and thus the statement's placeholder order past the fixed columns); any
// column absent from rec.Values is bound as SQL NULL rather than an empty
// string, so an unset field is distinguishable from a field explicitly
// rendered empty.
func (s *sqlStore) InsertPacket(ctx context.Context, cols []string, rec PacketRecord) error {
	columnNames := append([]string{}, fixedColumns...)
	args := rec.fixedArgs()

	for _, col := range dynamicColumns(cols) {
		columnNames = append(columnNames, col)
		if v, ok := rec.Values[col]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}

	placeholders := make([]string, len(columnNames))
	for i := range columnNames {
		placeholders[i] = s.bindvar(i + 1)
	}

	query := fmt.Sprintf(
		"INSERT INTO packets (%s) VALUES (%s)",
		strings.Join(columnNames, ", "),
		strings.Join(placeholders, ", "),
	)

	_, err := s.conn().ExecContext(ctx, query, args...)
	return err
}

// UpdatePacket overwrites the dynamic columns (plus error_msg/warning_msg)
// of the row named by pktNum with rec. This is the one place a packets row
// is ever rewritten after insertion: the inference engine's sniffed-key
// phase re-decodes a record once new key material surfaces, and the
// improved result replaces the original undecryptable one in place rather
// than appending a second row.
func (s *sqlStore) UpdatePacket(ctx context.Context, cols []string, pktNum int, rec PacketRecord) error {
	var errMsg, warnMsg interface{}
	if rec.ErrorMsg != "" {
		errMsg = rec.ErrorMsg
	}
	if rec.WarningMsg != "" {
		warnMsg = rec.WarningMsg
	}

	n := 0
	setParts := make([]string, 0, len(cols)+2)
	args := make([]interface{}, 0, len(cols)+3)

	n++
	setParts = append(setParts, fmt.Sprintf("error_msg = %s", s.bindvar(n)))
	args = append(args, errMsg)
	n++
	setParts = append(setParts, fmt.Sprintf("warning_msg = %s", s.bindvar(n)))
	args = append(args, warnMsg)

	for _, col := range dynamicColumns(cols) {
		n++
		setParts = append(setParts, fmt.Sprintf("%s = %s", col, s.bindvar(n)))
		if v, ok := rec.Values[col]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}

	n++
	query := fmt.Sprintf("UPDATE packets SET %s WHERE pkt_num = %s", strings.Join(setParts, ", "), s.bindvar(n))
	args = append(args, pktNum)

	_, err := s.conn().ExecContext(ctx, query, args...)
	return err
}

// Condition is an equality (or IS NULL, when Value is nil) filter on one
// packets-table column, used to select one of the field-values task's
// PACKET_TYPES.
type Condition struct {
	Column string
	Value  *string
}

// ColumnValue is one distinct value of an inspected column: Valid is false
// when the value is SQL NULL, matching the "null first" sort rule.
type ColumnValue struct {
	Value string
	Valid bool
}

// ScanPackets projects cols (in order, ascending by pkt_num) from every row
// matching conditions and calls fn once per row with the projected values;
// a column holding SQL NULL is simply absent from the row map. fn's error
// stops the scan and is returned as-is. This is the InferenceEngine's sole
// read path into the packets table — it needs arbitrary narrow projections
// across hundreds of columns, which the fixed PacketRecord/Condition shapes
// used by InsertPacket/DistinctColumnValues don't model.
func (s *sqlStore) ScanPackets(ctx context.Context, cols []string, conditions []Condition, fn func(row map[string]string) error) error {
	var whereParts []string
	var args []interface{}
	n := 0
	for _, c := range conditions {
		if c.Value == nil {
			whereParts = append(whereParts, fmt.Sprintf("%s IS NULL", c.Column))
			continue
		}
		n++
		whereParts = append(whereParts, fmt.Sprintf("%s = %s", c.Column, s.bindvar(n)))
		args = append(args, *c.Value)
	}

	query := fmt.Sprintf("SELECT %s FROM packets", strings.Join(cols, ", "))
	if len(whereParts) > 0 {
		query += " WHERE " + strings.Join(whereParts, " AND ")
	}
	query += " ORDER BY pkt_num"

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	scanDest := make([]sql.NullString, len(cols))
	scanArgs := make([]interface{}, len(cols))
	for i := range scanDest {
		scanArgs[i] = &scanDest[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return err
		}
		row := make(map[string]string, len(cols))
		for i, col := range cols {
			if scanDest[i].Valid {
				row[col] = scanDest[i].String
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DistinctColumnValues returns every distinct value col takes across rows
// of packets matching conditions.
func (s *sqlStore) DistinctColumnValues(ctx context.Context, col string, conditions []Condition) ([]ColumnValue, error) {
	var whereParts []string
	var args []interface{}
	n := 0
	for _, c := range conditions {
		if c.Value == nil {
			whereParts = append(whereParts, fmt.Sprintf("%s IS NULL", c.Column))
			continue
		}
		n++
		whereParts = append(whereParts, fmt.Sprintf("%s = %s", c.Column, s.bindvar(n)))
		args = append(args, *c.Value)
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM packets", col)
	if len(whereParts) > 0 {
		query += " WHERE " + strings.Join(whereParts, " AND ")
	}

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ColumnValue
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, ColumnValue{Value: v.String, Valid: v.Valid})
	}
	return out, rows.Err()
}
