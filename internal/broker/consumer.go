// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package broker implements ConsumerSource: it delivers a lazy
// sequence of raw payloads from a broker topic into an in-process
// channel, reconnecting on transient errors, per spec.md §4.2.
package broker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// reconnectDelay is the bounded backoff spec.md §4.2 specifies: on a
// broker read error the source sleeps this long and resumes polling.
const reconnectDelay = 1 * time.Second

// Config addresses the broker and topic, per spec.md §6.
type Config struct {
	Host    string
	Topic   string
	GroupID string
}

// saslFromEnv reads the SASL/SSL passthrough variables spec.md §6
// names: KAFKA_SECURITY_PROTOCOL, KAFKA_SASL_MECHANISM, KAFKA_USERNAME,
// KAFKA_PASSWORD. If absent, plaintext is used.
type saslConfig struct {
	securityProtocol string
	mechanism        string
	username         string
	password         string
}

func saslFromEnv() saslConfig {
	return saslConfig{
		securityProtocol: os.Getenv("KAFKA_SECURITY_PROTOCOL"),
		mechanism:        os.Getenv("KAFKA_SASL_MECHANISM"),
		username:         os.Getenv("KAFKA_USERNAME"),
		password:         os.Getenv("KAFKA_PASSWORD"),
	}
}

// Source is the capability set {start, disconnect} spec.md §9 asks
// ConsumerSource to be modeled as.
type Source struct {
	cfg   Config
	group sarama.ConsumerGroup

	cancel context.CancelFunc
}

// New builds the sarama client config (applying SASL from the
// environment when present) and opens a consumer group, without
// subscribing yet — subscription happens in Start, per spec.md §4.5's
// Supervisor start sequence.
func New(cfg Config) (*Source, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Offsets.AutoCommit.Enable = true
	saramaCfg.Consumer.Offsets.AutoCommit.Interval = time.Second
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	sasl := saslFromEnv()
	if sasl.securityProtocol != "" {
		cclog.Infof("broker: configuring security.protocol=%s", sasl.securityProtocol)
		saramaCfg.Net.TLS.Enable = sasl.securityProtocol == "SASL_SSL" || sasl.securityProtocol == "SSL"
	}
	if sasl.mechanism != "" {
		cclog.Infof("broker: configuring sasl.mechanism=%s", sasl.mechanism)
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.Mechanism = sarama.SASLMechanism(sasl.mechanism)
	}
	if sasl.username != "" {
		saramaCfg.Net.SASL.User = sasl.username
	}
	if sasl.password != "" {
		saramaCfg.Net.SASL.Password = sasl.password
	}

	group, err := sarama.NewConsumerGroup([]string{cfg.Host}, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("broker: create consumer group: %w", err)
	}

	cclog.Infof("broker: consumer configured for %s (topic=%s group=%s)", cfg.Host, cfg.Topic, cfg.GroupID)
	return &Source{cfg: cfg, group: group}, nil
}

// Start subscribes to the configured topic and returns an unbuffered
// channel of raw payloads: each payload is handed over only when the
// reader receives it, so the claim loop waits on a slow reader and
// nothing is queued in between. On a broker read error the source sleeps
// reconnectDelay and resumes polling; it never returns an error up the
// pipeline for transient conditions — only Disconnect stops it, per
// spec.md §4.2.
func (s *Source) Start() <-chan []byte {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	out := make(chan []byte)
	handler := &claimHandler{out: out}

	go func() {
		defer close(out)
		for {
			if err := ctx.Err(); err != nil {
				return
			}

			if err := s.group.Consume(ctx, []string{s.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					return
				}
				cclog.Errorf("broker: consume error, reconnecting in %s: %s", reconnectDelay, err.Error())
				time.Sleep(reconnectDelay)
				continue
			}
		}
	}()

	return out
}

// Disconnect cooperatively requests the background poll task to exit
// after the current delivery completes; pending in-channel payloads
// remain available for the Batcher to drain, per spec.md §4.2.
func (s *Source) Disconnect() {
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.group.Close(); err != nil {
		cclog.Warnf("broker: error closing consumer group: %s", err.Error())
	}
}

// claimHandler implements sarama.ConsumerGroupHandler. A payload is
// marked as soon as it is handed to the output channel, before it is
// decoded or written, so its offset auto-commits whether or not the
// write later succeeds. A payload that cannot be forwarded (consumer
// shutting down) is not marked and is delivered again after a restart.
type claimHandler struct {
	out chan<- []byte
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.out <- msg.Value:
			case <-session.Context().Done():
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
