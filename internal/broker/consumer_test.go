// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaslFromEnvReadsAllFourVariables(t *testing.T) {
	t.Setenv("KAFKA_SECURITY_PROTOCOL", "SASL_SSL")
	t.Setenv("KAFKA_SASL_MECHANISM", "PLAIN")
	t.Setenv("KAFKA_USERNAME", "alice")
	t.Setenv("KAFKA_PASSWORD", "secret")

	cfg := saslFromEnv()
	assert.Equal(t, "SASL_SSL", cfg.securityProtocol)
	assert.Equal(t, "PLAIN", cfg.mechanism)
	assert.Equal(t, "alice", cfg.username)
	assert.Equal(t, "secret", cfg.password)
}

func TestSaslFromEnvDefaultsToEmpty(t *testing.T) {
	os.Unsetenv("KAFKA_SECURITY_PROTOCOL")
	os.Unsetenv("KAFKA_SASL_MECHANISM")
	os.Unsetenv("KAFKA_USERNAME")
	os.Unsetenv("KAFKA_PASSWORD")

	cfg := saslFromEnv()
	assert.Empty(t, cfg.securityProtocol)
	assert.Empty(t, cfg.mechanism)
}

// fakeClaim is a minimal sarama.ConsumerGroupClaim backed by a channel
// the test controls directly.
type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                          { return "t" }
func (c *fakeClaim) Partition() int32                        { return 0 }
func (c *fakeClaim) InitialOffset() int64                    { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64              { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

// fakeSession is a minimal sarama.ConsumerGroupSession recording every
// MarkMessage call.
type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string           { return "fake" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)   {}
func (s *fakeSession) Commit()                                   {}
func (s *fakeSession) ResetOffset(string, int32, int64, string)  {}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}
func (s *fakeSession) Context() context.Context { return s.ctx }

func TestClaimHandlerForwardsMessagesAndMarksThem(t *testing.T) {
	out := make(chan []byte, 10)
	h := &claimHandler{out: out}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}

	claim.messages <- &sarama.ConsumerMessage{Value: []byte("first"), Offset: 1}
	claim.messages <- &sarama.ConsumerMessage{Value: []byte("second"), Offset: 2}
	close(claim.messages)

	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()

	require.Eventually(t, func() bool { return len(out) == 2 }, time.Second, time.Millisecond)
	require.NoError(t, <-done)

	assert.Equal(t, []byte("first"), <-out)
	assert.Equal(t, []byte("second"), <-out)
	assert.Equal(t, []int64{1, 2}, session.marked)
}

func TestClaimHandlerReturnsWhenSessionContextCancelled(t *testing.T) {
	out := make(chan []byte)
	h := &claimHandler{out: out}

	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not return after context cancellation")
	}
}
