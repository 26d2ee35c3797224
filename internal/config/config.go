// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the process's environment-variable
// configuration, per spec.md §6. A .env file in the working directory
// is loaded first, if present, so local development does not require
// exporting every variable by hand.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// Config is the complete set of environment-derived settings the
// Supervisor needs to wire the broker, the store and the batcher
// together.
type Config struct {
	BrokerHost    string
	BrokerTopic   string
	BrokerGroupID string

	DBHost              string
	DBPort              int
	DBDatabase          string
	DBUsername          string
	DBPassword          string
	DBMaxConnections    int32
	DBMinConnections    int32
	DBConnectionTimeout time.Duration
	DBIdleTimeout       time.Duration

	WorkerThreads       int
	MessageBufferSize   int
	BatchProcessingSize int
	MaxParallelDevices  int

	LogLevel string
}

// Load reads every variable spec.md §6 names, applying the documented
// defaults for the ones that have them. It never returns an error for
// a missing optional variable — only for a present-but-unparsable
// numeric one, so an operator's typo surfaces at startup rather than
// silently falling back to a default.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Warnf("config: error loading .env file: %s", err.Error())
	}

	cfg := Config{
		BrokerHost:    getString("BROKER_HOST", "127.0.0.1:9092"),
		BrokerTopic:   getString("BROKER_TOPIC", "siscom-messages"),
		BrokerGroupID: getString("BROKER_GROUP_ID", "siscom-consumer-group"),

		DBHost:     getString("DB_HOST", "127.0.0.1"),
		DBDatabase: getString("DB_DATABASE", "siscom"),
		DBUsername: getString("DB_USERNAME", "siscom"),
		DBPassword: os.Getenv("DB_PASSWORD"),

		LogLevel: getString("LOGGING_LEVEL", getString("RUST_LOG", "info")),
	}

	var err error
	if cfg.DBPort, err = getInt("DB_PORT", 5432); err != nil {
		return Config{}, err
	}

	var maxConns, minConns int
	if maxConns, err = getInt("DB_MAX_CONNECTIONS", 20); err != nil {
		return Config{}, err
	}
	if minConns, err = getInt("DB_MIN_CONNECTIONS", 5); err != nil {
		return Config{}, err
	}
	cfg.DBMaxConnections = int32(maxConns)
	cfg.DBMinConnections = int32(minConns)

	var connTimeoutSecs, idleTimeoutSecs int
	if connTimeoutSecs, err = getInt("DB_CONNECTION_TIMEOUT_SECS", 30); err != nil {
		return Config{}, err
	}
	if idleTimeoutSecs, err = getInt("DB_IDLE_TIMEOUT_SECS", 600); err != nil {
		return Config{}, err
	}
	cfg.DBConnectionTimeout = time.Duration(connTimeoutSecs) * time.Second
	cfg.DBIdleTimeout = time.Duration(idleTimeoutSecs) * time.Second

	if cfg.WorkerThreads, err = getInt("PROCESSING_WORKER_THREADS", 4); err != nil {
		return Config{}, err
	}
	if cfg.MessageBufferSize, err = getInt("PROCESSING_MESSAGE_BUFFER_SIZE", 1000); err != nil {
		return Config{}, err
	}
	if cfg.BatchProcessingSize, err = getInt("PROCESSING_BATCH_PROCESSING_SIZE", 100); err != nil {
		return Config{}, err
	}
	if cfg.MaxParallelDevices, err = getInt("PROCESSING_MAX_PARALLEL_DEVICES", 16); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DSN builds the libpq-style connection string pgxpool expects.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		c.DBHost, c.DBPort, c.DBDatabase, c.DBUsername, c.DBPassword)
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a valid integer: %w", key, v, err)
	}
	return n, nil
}
