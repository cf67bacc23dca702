// Package storage persists decoded packets and the corpus-global derived
// tables (addresses, devices, networks, pairs) behind a single Store
// interface, backed by either sqlite3 (default, single-file) or Postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/zigator-go/zigator/internal/models"
	"github.com/zigator-go/zigator/pkg/zigbee"
)

// Common errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store defines the persistence surface the worker pool and inference
// engine write through. Every method operates on the shared connection;
// callers needing atomicity around a batch of writes use BeginTx.
type Store interface {
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// InsertPacket writes one decoded packet's fixed metadata plus its
	// Frame column values. cols is the canonical packets-table column
	// order; a column absent from rec.Values is stored as NULL.
	InsertPacket(ctx context.Context, cols []string, rec PacketRecord) error

	// UpdatePacket rewrites the dynamic columns of the row named by pktNum,
	// used only by the inference engine's sniffed-key re-decode pass.
	UpdatePacket(ctx context.Context, cols []string, pktNum int, rec PacketRecord) error

	// DistinctColumnValues returns every distinct value col takes across
	// rows matching conditions (nil Value means "IS NULL"), each paired
	// with whether it was NULL.
	DistinctColumnValues(ctx context.Context, col string, conditions []Condition) ([]ColumnValue, error)

	// ScanPackets projects cols from every row matching conditions, in
	// pkt_num order, calling fn once per row.
	ScanPackets(ctx context.Context, cols []string, conditions []Condition, fn func(row map[string]string) error) error

	// UpsertAddress writes an Address row if the (short, panid, extended)
	// triple hasn't been seen before. Already-seen triples are a silent
	// no-op, never an update.
	UpsertAddress(ctx context.Context, addr models.Address) error
	ListAddresses(ctx context.Context) ([]models.Address, error)

	// UpsertDevice merges mac/nwk device type fields into the row for
	// extended. Only an empty field takes the new value; an already-assigned
	// field is left untouched.
	UpsertDevice(ctx context.Context, extended, macDeviceType, nwkDeviceType string) error
	ListDevices(ctx context.Context) ([]models.Device, error)

	// UpsertNetwork adds shortPANID to the sorted set bound to
	// extendedPANID.
	UpsertNetwork(ctx context.Context, extendedPANID, shortPANID string) error
	ListNetworks(ctx context.Context) ([]models.Network, error)

	// UpsertPair extends the first/last-seen window for a
	// (src, dst, panid) triple.
	UpsertPair(ctx context.Context, srcShort, dstShort, panid string, seenAt int64) error
	ListPairs(ctx context.Context) ([]models.Pair, error)

	CreateRun(ctx context.Context, run models.Run) error

	// InsertSniffedKey records provenance for a key recovered by the
	// inference engine. Duplicate names are silently ignored, matching the
	// KeyRing's own dedupe-by-name behavior.
	InsertSniffedKey(ctx context.Context, key models.SniffedKey) error
	ListSniffedKeys(ctx context.Context) ([]models.SniffedKey, error)

	Close() error
}

// sqlStore implements Store over database/sql, working against either the
// sqlite3 or the Postgres driver depending on how Open constructed it.
type sqlStore struct {
	db     *sql.DB
	tx     *sql.Tx
	driver string
}

// Open opens (and, for sqlite3, creates) the database named by dsn using
// driver ("sqlite3" or "postgres"), applies the fixed embedded schema, and
// returns a ready Store.
func Open(driver, dsn string, maxOpenConns, maxIdleConns int) (Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &sqlStore{db: db, driver: driver}
	if err := s.migrate(zigbee.ColumnOrder()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) BeginTx(ctx context.Context) (Store, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlStore{db: s.db, tx: tx, driver: s.driver}, nil
}

func (s *sqlStore) Commit() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Commit()
}

func (s *sqlStore) Rollback() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Rollback()
}

// execer is the subset of *sql.DB / *sql.Tx every method below needs.
type execer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *sqlStore) conn() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// bindvar returns the Nth positional placeholder for the active driver:
// Postgres wants $N, sqlite3 accepts plain ?.
func (s *sqlStore) bindvar(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
