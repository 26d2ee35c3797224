// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store owns the PostgreSQL connection pool and performs the
// atomic two-table write (append + upsert) spec.md §4.4 describes:
// chunked multi-values bulk inserts inside a single transaction, with
// per-row diagnostics on failure.
package store

import (
	"context"
	"fmt"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the pool parameters spec.md §4.4/§6 names.
type Config struct {
	ConnString     string
	MinConns       int32
	MaxConns       int32
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
}

// Store owns the connection pool and executes bulk append/upsert
// statements inside a single transaction per flush.
type Store struct {
	pool *pgxpool.Pool
	cfg  Config
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// New opens the pool, applies the configured pool limits, and aborts
// with an error if the startup `SELECT 1` probe fails — per spec.md
// §4.4's "Connection pool" paragraph.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("store: parse connection string: %w", err)
	}

	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnIdleTime = cfg.IdleTimeout

	acquireCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(acquireCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}

	var one int
	if err := pool.QueryRow(acquireCtx, "SELECT 1").Scan(&one); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: startup probe failed: %w", err)
	}

	cclog.Info("store: connected to PostgreSQL")
	return &Store{pool: pool, cfg: cfg}, nil
}

// Close releases the pool's connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Healthy runs a parameterless `SELECT 1` with a 5-second timeout, per
// spec.md §4.4. It never affects pipeline operation: a failure is
// logged and reported back as false, not propagated as an error.
func (s *Store) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		cclog.Errorf("store: health probe failed: %s", err.Error())
		return false
	}
	return true
}

// InsertByManufacturer opens one transaction, appends history rows for
// Suntech (if any), then Queclink (if any), then upserts current-state
// rows across both lists, and commits. On any statement failure the
// transaction is rolled back and the error carries per-chunk
// diagnostics, per spec.md §4.4's "Transactional grouping" paragraph.
func (s *Store) InsertByManufacturer(ctx context.Context, suntech, queclink []*Row) (int, error) {
	total := len(suntech) + len(queclink)
	if total == 0 {
		return 0, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	conn, err := s.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("store: acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if len(suntech) > 0 {
		if err := s.appendHistory(ctx, tx, suntech, historyTable("SUNTECH")); err != nil {
			return 0, err
		}
	}
	if len(queclink) > 0 {
		if err := s.appendHistory(ctx, tx, queclink, historyTable("QUECLINK")); err != nil {
			return 0, err
		}
	}

	current := dedupeLastByDeviceAndClass(append(append([]*Row{}, suntech...), queclink...))
	if len(current) > 0 {
		if err := s.upsertCurrentState(ctx, tx, current); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit transaction: %w", err)
	}

	return total, nil
}

// InsertOne writes a single Observation immediately, bypassing the
// batch path. It is a Store-level convenience for an urgent-write use
// case the original implementation exposed (src/services/processor.rs
// `process_single_message`); nothing in the streaming pipeline calls
// it by default (see SPEC_FULL.md §9).
func (s *Store) InsertOne(ctx context.Context, row *Row) error {
	var suntech, queclink []*Row
	if row.Manufacturer == "QUECLINK" {
		queclink = []*Row{row}
	} else {
		suntech = []*Row{row}
	}
	_, err := s.InsertByManufacturer(ctx, suntech, queclink)
	return err
}

func (s *Store) appendHistory(ctx context.Context, tx pgx.Tx, rows []*Row, table string) error {
	for _, chunk := range chunkRows(rows, bulkChunkSize) {
		builder := psql.Insert(table).Columns(columns...)
		for _, row := range chunk {
			builder = builder.Values(row.values()...)
		}

		sqlStr, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("store: build append statement: %w", err)
		}

		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			logChunkDiagnostics(chunk, err)
			return fmt.Errorf("store: append to %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) upsertCurrentState(ctx context.Context, tx pgx.Tx, rows []*Row) error {
	for _, chunk := range chunkRows(rows, bulkChunkSize) {
		builder := psql.Insert(currentStateTable).Columns(columns...)
		for _, row := range chunk {
			builder = builder.Values(row.values()...)
		}
		builder = builder.Suffix(upsertSuffix())

		sqlStr, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("store: build upsert statement: %w", err)
		}

		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			logChunkDiagnostics(chunk, err)
			return fmt.Errorf("store: upsert current state: %w", err)
		}
	}
	return nil
}

// upsertSuffix builds the `ON CONFLICT (device_id, msg_class) DO
// UPDATE` clause that copies every column from the candidate row,
// except received_at (server NOW()) and created_at (preserved), per
// spec.md §4.4's "Upsert" paragraph.
func upsertSuffix() string {
	suffix := "ON CONFLICT (device_id, msg_class) DO UPDATE SET "
	sets := make([]string, 0, len(columns))
	for _, col := range columns {
		switch col {
		case "device_id", "msg_class":
			continue
		case "received_at":
			sets = append(sets, "received_at = NOW()")
		case "created_at":
			continue
		default:
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	for i, s := range sets {
		if i > 0 {
			suffix += ", "
		}
		suffix += s
	}
	return suffix
}

func chunkRows(rows []*Row, size int) [][]*Row {
	if len(rows) == 0 {
		return nil
	}
	chunks := make([][]*Row, 0, (len(rows)+size-1)/size)
	for size < len(rows) {
		rows, chunks = rows[size:], append(chunks, rows[0:size:size])
	}
	chunks = append(chunks, rows)
	return chunks
}

// dedupeLastByDeviceAndClass keeps only the last occurrence of each
// (device_id, msg_class) key, per spec.md §9's resolved open question:
// "implementers should deduplicate to the last occurrence before
// emitting the upsert chunk."
func dedupeLastByDeviceAndClass(rows []*Row) []*Row {
	type key struct{ deviceID, msgClass string }

	lastIndex := make(map[key]int, len(rows))
	for i, row := range rows {
		lastIndex[key{row.DeviceID, row.MsgClass}] = i
	}

	seen := make(map[key]bool, len(rows))
	out := make([]*Row, 0, len(lastIndex))
	for i, row := range rows {
		k := key{row.DeviceID, row.MsgClass}
		if lastIndex[k] != i || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, row)
	}
	return out
}

// logChunkDiagnostics emits, for every row in a failing chunk: the
// device_id, uuid, and length of each length-bounded field, plus an
// error-level message for any field exceeding its documented limit.
// This is the primary signal by which schema-length violations are
// surfaced, per spec.md §4.4.
func logChunkDiagnostics(chunk []*Row, cause error) {
	for _, row := range chunk {
		for _, fl := range row.lengthDiagnostics() {
			limit := fieldLimits[fl.name]
			length := len(fl.value)
			cclog.Warnf("store: row diagnostic device_id=%s uuid=%s field=%s length=%d limit=%d",
				row.DeviceID, row.UUID, fl.name, length, limit)
			if length > limit {
				cclog.Errorf("store: field %q exceeds limit (device_id=%s uuid=%s length=%d limit=%d): %s",
					fl.name, row.DeviceID, row.UUID, length, limit, cause.Error())
			}
		}
	}
}
