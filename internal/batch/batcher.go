// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package batch implements the central coordinator: it reads
// Observations from an inbound channel, accumulates a batch,
// partitions it by Manufacturer, and writes it to the Store — on a
// size threshold or a periodic timer, whichever comes first. This is
// modeled on the teacher's internal/archiver worker-channel pattern,
// generalized to a dual-trigger loop.
package batch

import (
	"context"
	"sync"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/siscom/consumer/internal/model"
	"github.com/siscom/consumer/internal/store"
)

// Store is the subset of store.Store the Batcher depends on; tests
// substitute a fake implementation.
type Store interface {
	InsertByManufacturer(ctx context.Context, suntech, queclink []*store.Row) (int, error)
}

// Config configures the dual trigger, per spec.md §4.3.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Stats is the cumulative set of counters the Supervisor's stats
// reporter logs every 60s, per SPEC_FULL.md §2.
type Stats struct {
	mu              sync.Mutex
	Decoded         uint64
	Dropped         uint64
	BatchesFlushed  uint64
	RowsAppended    uint64
	RowsUpserted    uint64
}

// AddDecoded increments the decoded-message counter; the Supervisor
// calls this once per payload successfully decoded, upstream of the
// Batcher itself.
func (s *Stats) AddDecoded() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Decoded++
	s.mu.Unlock()
}

func (s *Stats) addFlush(appended, upserted int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchesFlushed++
	s.RowsAppended += uint64(appended)
	s.RowsUpserted += uint64(upserted)
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Decoded:        s.Decoded,
		Dropped:        s.Dropped,
		BatchesFlushed: s.BatchesFlushed,
		RowsAppended:   s.RowsAppended,
		RowsUpserted:   s.RowsUpserted,
	}
}

// Batcher is the single serial loop that owns the in-memory batch. It
// is not safe to run more than one Batcher loop concurrently against
// the same Store — spec.md §4.3 requires exactly one, to preserve
// per-device ordering and avoid write-write conflicts on the
// current-state table.
type Batcher struct {
	cfg   Config
	store Store
	stats *Stats

	batch []*model.Observation
}

// New constructs a Batcher bound to the given Store.
func New(cfg Config, s Store, stats *Stats) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Batcher{
		cfg:   cfg,
		store: s,
		stats: stats,
		batch: make([]*model.Observation, 0, cfg.BatchSize),
	}
}

// Run drives the dual trigger: arrival on inbound, or a periodic
// timer tick. On inbound close it flushes once more and returns, per
// spec.md §4.3's algorithm.
func (b *Batcher) Run(ctx context.Context, inbound <-chan *model.Observation) {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case obs, ok := <-inbound:
			if !ok {
				b.flush(context.WithoutCancel(ctx))
				cclog.Info("batch: inbound channel closed, batcher terminated")
				return
			}
			if !obs.Valid() {
				cclog.Warnf("batch: dropping invalid observation device_id=%q uuid=%q manufacturer=%q",
					obs.DeviceID, obs.UUID, obs.Manufacturer)
				b.countDropped()
				continue
			}
			b.batch = append(b.batch, obs)
			if len(b.batch) >= b.cfg.BatchSize {
				b.flush(ctx)
			}

		case <-ticker.C:
			if len(b.batch) > 0 {
				b.flush(ctx)
			}

		case <-ctx.Done():
			b.flush(context.WithoutCancel(ctx))
			cclog.Info("batch: shutdown signal received, flushed and terminated")
			return
		}
	}
}

func (b *Batcher) countDropped() {
	if b.stats == nil {
		return
	}
	b.stats.mu.Lock()
	b.stats.Dropped++
	b.stats.mu.Unlock()
}

// flush partitions the current batch by manufacturer, prepares rows,
// calls the Store, and clears the batch regardless of outcome — a
// failing batch is logged with diagnostics and dropped, not retried,
// per spec.md §4.3/§7.
func (b *Batcher) flush(ctx context.Context) {
	if len(b.batch) == 0 {
		return
	}

	now := time.Now().UTC()
	var suntech, queclink []*store.Row
	for _, obs := range b.batch {
		row := prepareRow(obs, now)
		switch obs.Manufacturer {
		case model.ManufacturerQueclink:
			queclink = append(queclink, row)
		default:
			suntech = append(suntech, row)
		}
	}

	n := len(b.batch)
	if _, err := b.store.InsertByManufacturer(ctx, suntech, queclink); err != nil {
		cclog.Errorf("batch: flush of %d observations failed, batch dropped: %s", n, err.Error())
	} else {
		cclog.Debugf("batch: flushed %d observations (%d suntech, %d queclink)", n, len(suntech), len(queclink))
		b.stats.addFlush(len(suntech)+len(queclink), countCurrentStateRows(suntech, queclink))
	}

	b.batch = b.batch[:0]
}

// countCurrentStateRows mirrors the Store's own dedup-by-key so the
// stats reporter's "rows upserted" figure matches what actually
// committed.
func countCurrentStateRows(suntech, queclink []*store.Row) int {
	type key struct{ deviceID, msgClass string }
	seen := make(map[key]bool)
	for _, rows := range [][]*store.Row{suntech, queclink} {
		for _, r := range rows {
			seen[key{r.DeviceID, r.MsgClass}] = true
		}
	}
	return len(seen)
}
