package cache

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Payload header byte.
const (
	formatRaw  byte = 0
	formatZstd byte = 1
)

// Codec serializes cache values to JSON and compresses those above a threshold.
// Encoder and decoder are safe for concurrent use via EncodeAll/DecodeAll.
type Codec struct {
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewCodec creates a codec. threshold <= 0 defaults to 1KB.
func NewCodec(threshold int) (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if threshold <= 0 {
		threshold = 1024
	}
	return &Codec{encoder: encoder, decoder: decoder, compressThreshold: threshold}, nil
}

// Marshal encodes v.
func (c *Codec) Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if len(raw) < c.compressThreshold {
		return append([]byte{formatRaw}, raw...), nil
	}
	out := make([]byte, 1, len(raw)/2+1)
	out[0] = formatZstd
	return c.encoder.EncodeAll(raw, out), nil
}

// Unmarshal decodes data produced by Marshal into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	raw := data[1:]
	switch data[0] {
	case formatRaw:
	case formatZstd:
		var err error
		raw, err = c.decoder.DecodeAll(raw, nil)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
	default:
		return fmt.Errorf("unknown payload format %d", data[0])
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// Close releases encoder resources.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
