// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/siscom/consumer/internal/batch"
	"github.com/siscom/consumer/internal/broker"
	"github.com/siscom/consumer/internal/config"
	"github.com/siscom/consumer/internal/store"
	"github.com/siscom/consumer/internal/supervisor"
)

func main() {
	var flagLogLevel string
	flag.StringVar(&flagLogLevel, "log-level", "", "Overwrite LOGGING_LEVEL/RUST_LOG ('debug', 'info', 'warn', 'err')")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "siscom-consumer: %s\n", err.Error())
		os.Exit(1)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	cclog.Init(cfg.LogLevel, true)

	cclog.Infof("siscom-consumer: starting (broker=%s topic=%s group=%s)",
		cfg.BrokerHost, cfg.BrokerTopic, cfg.BrokerGroupID)

	// WorkerThreads, MessageBufferSize and MaxParallelDevices have no
	// effect on this single-process pipeline yet; they are accepted and
	// logged for forward compatibility with a future worker-pool split
	// (spec.md §6).
	cclog.Infof("siscom-consumer: worker_threads=%d message_buffer_size=%d max_parallel_devices=%d",
		cfg.WorkerThreads, cfg.MessageBufferSize, cfg.MaxParallelDevices)

	ctx := context.Background()

	st, err := store.New(ctx, store.Config{
		ConnString:     cfg.DSN(),
		MinConns:       cfg.DBMinConnections,
		MaxConns:       cfg.DBMaxConnections,
		AcquireTimeout: cfg.DBConnectionTimeout,
		IdleTimeout:    cfg.DBIdleTimeout,
	})
	if err != nil {
		cclog.Fatalf("siscom-consumer: store initialization failed: %s", err.Error())
	}

	source, err := broker.New(broker.Config{
		Host:    cfg.BrokerHost,
		Topic:   cfg.BrokerTopic,
		GroupID: cfg.BrokerGroupID,
	})
	if err != nil {
		cclog.Fatalf("siscom-consumer: broker initialization failed: %s", err.Error())
	}

	stats := &batch.Stats{}
	batcher := batch.New(batch.Config{
		BatchSize: cfg.BatchProcessingSize,
	}, st, stats)

	sv := supervisor.New(source, st, batcher, stats, cfg.BatchProcessingSize)

	cclog.Info("siscom-consumer: ready, awaiting messages")
	sv.Run(ctx)

	cclog.Info("siscom-consumer: exited cleanly")
}
