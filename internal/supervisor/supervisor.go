// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package supervisor wires the ConsumerSource, the decoder, the
// Batcher and the Store together, and owns the process's shutdown
// sequencing: a SIGINT/SIGTERM stops the broker source first, drains
// whatever the Batcher still holds, then closes the Store. This
// mirrors the teacher's cmd/cc-backend/main.go WaitGroup + signal
// pattern, generalized to a broker-to-store pipeline instead of an
// HTTP server.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/siscom/consumer/internal/batch"
	"github.com/siscom/consumer/internal/decode"
	"github.com/siscom/consumer/internal/model"
)

// Source is the subset of broker.Source the Supervisor depends on;
// tests substitute a fake implementation.
type Source interface {
	Start() <-chan []byte
	Disconnect()
}

// healthProbeInterval and statsReportInterval are the two observational
// background tasks the Supervisor runs alongside the pipeline.
const (
	healthProbeInterval = 30 * time.Second
	statsReportInterval = 60 * time.Second
)

// Store is the subset the Supervisor needs directly; it is satisfied
// by *store.Store and substituted by a fake in tests.
type Store interface {
	Healthy(ctx context.Context) bool
	Close()
}

// Supervisor owns the pipeline's lifetime: one ConsumerSource, one
// Decoder, one Batcher, and the Store they all write through.
type Supervisor struct {
	source  Source
	decoder *decode.Decoder
	batcher *batch.Batcher
	store   Store
	stats   *batch.Stats

	batchSize int

	wg sync.WaitGroup
}

// New constructs a Supervisor. batchSize sizes the broker-to-Batcher
// channel (2 × batchSize, per spec.md §5) and should be the same value
// the Batcher itself was configured with. The caller retains ownership
// of the components' lifecycle decisions (none are started yet).
func New(source Source, st Store, b *batch.Batcher, stats *batch.Stats, batchSize int) *Supervisor {
	return &Supervisor{
		source:    source,
		decoder:   decode.New(),
		batcher:   b,
		store:     st,
		stats:     stats,
		batchSize: batchSize,
	}
}

// Run starts the ConsumerSource exactly once (spec.md §9 calls out a
// duplicate-start bug in the original as something a correct
// implementation must not repeat), decodes each payload, feeds the
// Batcher, and blocks until a SIGINT/SIGTERM is received or ctx is
// cancelled. It returns only after the Batcher has flushed its final
// batch and the Store has been closed.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case sig := <-sigs:
			cclog.Infof("supervisor: received signal %s, shutting down", sig)
		case <-ctx.Done():
		}
		s.source.Disconnect()
		cancel()
	}()

	raw := s.source.Start()
	// Buffered at 2 × batch_size (spec.md §5), so the decoder can run a
	// full batch ahead of the Batcher without blocking on it.
	observations := make(chan *model.Observation, 2*s.batchSize)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(observations)
		for payload := range raw {
			obs, err := s.decoder.Decode(payload)
			if err != nil {
				cclog.Warnf("supervisor: dropping undecodable payload: %s", err.Error())
				continue
			}
			s.countDecoded()
			select {
			case observations <- obs:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.wg.Add(1)
	go s.runHealthProbe(ctx)

	s.wg.Add(1)
	go s.runStatsReporter(ctx)

	s.batcher.Run(ctx, observations)

	s.wg.Wait()
	s.store.Close()
	cclog.Info("supervisor: shutdown complete")
}

func (s *Supervisor) countDecoded() {
	if s.stats == nil {
		return
	}
	s.stats.AddDecoded()
}

// runHealthProbe periodically checks store connectivity; failures are
// logged but never abort the pipeline, per spec.md §7.
func (s *Supervisor) runHealthProbe(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !s.store.Healthy(ctx) {
				cclog.Warn("supervisor: health probe failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// runStatsReporter periodically logs the Batcher's cumulative
// counters, matching spec.md §7's operational stats log line.
func (s *Supervisor) runStatsReporter(ctx context.Context) {
	defer s.wg.Done()
	if s.stats == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := s.stats.Snapshot()
			cclog.Infof("supervisor: stats decoded=%d dropped=%d batches=%d rows_appended=%d rows_upserted=%d",
				snap.Decoded, snap.Dropped, snap.BatchesFlushed, snap.RowsAppended, snap.RowsUpserted)
		case <-ctx.Done():
			return
		}
	}
}
