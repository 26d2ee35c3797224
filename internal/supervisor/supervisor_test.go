// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siscom/consumer/internal/batch"
	"github.com/siscom/consumer/internal/store"
)

type fakeStore struct {
	closed  int32
	healthy int32
}

func (f *fakeStore) Healthy(context.Context) bool { return atomic.LoadInt32(&f.healthy) != 0 }
func (f *fakeStore) Close()                       { atomic.StoreInt32(&f.closed, 1) }

func (f *fakeStore) InsertByManufacturer(_ context.Context, suntech, queclink []*store.Row) (int, error) {
	return len(suntech) + len(queclink), nil
}

type fakeSource struct {
	out          chan []byte
	disconnected int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{out: make(chan []byte, 10)}
}

func (f *fakeSource) Start() <-chan []byte { return f.out }

func (f *fakeSource) Disconnect() {
	atomic.StoreInt32(&f.disconnected, 1)
	close(f.out)
}

func TestSupervisorRunClosesStoreAndDisconnectsSourceOnCancellation(t *testing.T) {
	fs := &fakeStore{healthy: 1}
	src := newFakeSource()
	stats := &batch.Stats{}
	b := batch.New(batch.Config{BatchSize: 10, FlushInterval: time.Hour}, fs, stats)
	s := New(src, fs, b, stats, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Supervisor.Run did not return after cancellation")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&fs.closed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.disconnected))
}

func TestSupervisorUndecodablePayloadIsNotCountedAsBatchDrop(t *testing.T) {
	fs := &fakeStore{healthy: 1}
	src := newFakeSource()
	stats := &batch.Stats{}
	b := batch.New(batch.Config{BatchSize: 1, FlushInterval: time.Hour}, fs, stats)
	s := New(src, fs, b, stats, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	src.out <- []byte{0xff, 0x00, 0x01} // malformed, decoder must drop it

	require.Eventually(t, func() bool {
		return stats.Snapshot().Dropped == 0 // decode drop isn't counted as a batch drop
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}
