// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rowFor(deviceID, msgClass string) *Row {
	return &Row{DeviceID: deviceID, MsgClass: msgClass}
}

func TestDedupeLastByDeviceAndClassKeepsLastOccurrence(t *testing.T) {
	rows := []*Row{
		rowFor("A", "STT"),
		rowFor("B", "STT"),
		rowFor("A", "STT"),
	}
	out := dedupeLastByDeviceAndClass(rows)

	assert.Len(t, out, 2)
	assert.Same(t, rows[2], findRow(out, "A"))
	assert.Same(t, rows[1], findRow(out, "B"))
}

func findRow(rows []*Row, deviceID string) *Row {
	for _, r := range rows {
		if r.DeviceID == deviceID {
			return r
		}
	}
	return nil
}

func TestChunkRowsSplitsAtChunkSize(t *testing.T) {
	rows := make([]*Row, 0, 250)
	for i := 0; i < 250; i++ {
		rows = append(rows, rowFor("D", "STT"))
	}

	chunks := chunkRows(rows, bulkChunkSize)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
}

func TestChunkRowsEmptyInputYieldsNoChunks(t *testing.T) {
	assert.Nil(t, chunkRows(nil, bulkChunkSize))
}

func TestUpsertSuffixPreservesCreatedAtAndSetsReceivedAtToNow(t *testing.T) {
	suffix := upsertSuffix()
	assert.Contains(t, suffix, "ON CONFLICT (device_id, msg_class) DO UPDATE SET")
	assert.Contains(t, suffix, "received_at = NOW()")
	assert.NotContains(t, suffix, "created_at = EXCLUDED.created_at")
	assert.Contains(t, suffix, "uuid = EXCLUDED.uuid")
}

func TestLengthDiagnosticsCoversAllBoundedFields(t *testing.T) {
	row := &Row{CellID: "123456789012", LAC: "1", MCC: "1", MNC: "1", Model: "m", Firmware: "f", MsgClass: "STT"}
	diags := row.lengthDiagnostics()
	names := make([]string, 0, len(diags))
	for _, d := range diags {
		names = append(names, d.name)
	}
	assert.ElementsMatch(t, []string{"cell_id", "lac", "mcc", "mnc", "model", "firmware", "msg_class"}, names)
}
