package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"aerialplan/internal/pattern"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() error {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return codecErr
}

// EncodeWaypoints packs a waypoint sequence as zstd-compressed msgpack.
func EncodeWaypoints(wps []pattern.Waypoint) ([]byte, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("failed to create zstd codec: %w", err)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(wps); err != nil {
		return nil, fmt.Errorf("encode waypoints: %w", err)
	}
	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeWaypoints reverses EncodeWaypoints.
func DecodeWaypoints(blob []byte) ([]pattern.Waypoint, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("failed to create zstd codec: %w", err)
	}
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress waypoints: %w", err)
	}
	var wps []pattern.Waypoint
	if err := msgpack.Unmarshal(raw, &wps); err != nil {
		return nil, fmt.Errorf("decode waypoints: %w", err)
	}
	return wps, nil
}
