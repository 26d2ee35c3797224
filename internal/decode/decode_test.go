// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siscom/consumer/internal/model"
)

func encodeRecord(t *testing.T, native map[string]interface{}) []byte {
	t.Helper()
	buf, err := recordCodec.BinaryFromNative(nil, native)
	require.NoError(t, err)
	return buf
}

func baseMetadata() map[string]interface{} {
	return map[string]interface{}{
		"bytes":          int64(128),
		"client_ip":      map[string]interface{}{"string": "10.0.0.1"},
		"client_port":    int32(9092),
		"decoded_epoch":  int64(1700000001),
		"received_epoch": int64(1700000000),
		"worker_id":      int32(3),
	}
}

func TestDecodeSuntechHappyPath(t *testing.T) {
	native := map[string]interface{}{
		"uuid": "uuid-1",
		"raw":  "raw-text",
		"data": map[string]interface{}{
			"DEVICE_ID": "device-A",
			"MSG_CLASS": "STT",
			"SPEED":     "12.5",
			"ALERT":     "LOW_BATTERY",
		},
		"metadata": baseMetadata(),
		"decoded": map[string]interface{}{
			"SuntechBlock": map[string]interface{}{
				"fields": map[string]interface{}{
					"HEADER": "ST300",
					"MSG_TYPE": "STT",
				},
			},
		},
	}

	d := New()
	obs, err := d.Decode(encodeRecord(t, native))
	require.NoError(t, err)

	assert.Equal(t, "uuid-1", obs.UUID)
	assert.Equal(t, "device-A", obs.DeviceID)
	assert.Equal(t, "STT", obs.MsgClass)
	assert.Equal(t, "12.5", obs.Speed)
	assert.Equal(t, model.ManufacturerSuntech, obs.Manufacturer)
	assert.Equal(t, "ST300", obs.RawBlock["HEADER"])
	assert.Equal(t, "LOW_BATTERY", obs.AlertType)
	assert.NotNil(t, obs.ClientIP)
	assert.Equal(t, "10.0.0.1", *obs.ClientIP)
}

func TestDecodeQueclinkVariant(t *testing.T) {
	native := map[string]interface{}{
		"uuid": "uuid-2",
		"raw":  "raw-text-2",
		"data": map[string]interface{}{
			"DEVICE_ID": "device-B",
		},
		"metadata": baseMetadata(),
		"decoded": map[string]interface{}{
			"QueclinkBlock": map[string]interface{}{
				"fields": map[string]interface{}{
					"HEADER": "GTFRI",
				},
			},
		},
	}

	d := New()
	obs, err := d.Decode(encodeRecord(t, native))
	require.NoError(t, err)
	assert.Equal(t, model.ManufacturerQueclink, obs.Manufacturer)
	assert.Equal(t, "GTFRI", obs.RawBlock["HEADER"])
}

func TestDecodeMissingVariantFallsBackToSuntech(t *testing.T) {
	native := map[string]interface{}{
		"uuid":     "uuid-3",
		"raw":      "raw-text-3",
		"data":     map[string]interface{}{"DEVICE_ID": "device-C"},
		"metadata": baseMetadata(),
		"decoded":  nil,
	}

	d := New()
	obs, err := d.Decode(encodeRecord(t, native))
	require.NoError(t, err)
	assert.Equal(t, model.ManufacturerSuntech, obs.Manufacturer)
	assert.Empty(t, obs.RawBlock)
}

func TestDecodeMissingOptionalKeyResolvesToEmptyString(t *testing.T) {
	native := map[string]interface{}{
		"uuid":     "uuid-4",
		"raw":      "raw-text-4",
		"data":     map[string]interface{}{"DEVICE_ID": "device-D"},
		"metadata": baseMetadata(),
		"decoded":  nil,
	}

	d := New()
	obs, err := d.Decode(encodeRecord(t, native))
	require.NoError(t, err)
	assert.Empty(t, obs.Speed)
	assert.Empty(t, obs.Altitude)
	assert.Empty(t, obs.AlertType)
}

func TestSerializeRawBlockIsDeterministic(t *testing.T) {
	raw := map[string]string{"B": "2", "A": "1"}
	assert.Equal(t, "A=1;B=2", SerializeRawBlock(raw))
}

func TestDecodeMalformedPayloadIsDecodeError(t *testing.T) {
	d := New()
	_, err := d.Decode([]byte{0xff, 0x00, 0x01})
	assert.Error(t, err)
}
