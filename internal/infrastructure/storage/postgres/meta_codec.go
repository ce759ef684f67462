package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DefaultCompressThreshold is the encoded size above which metadata is
// stored compressed.
const DefaultCompressThreshold = 4 * 1024

// MetaCodec stores JSON metadata either inline or zstd-compressed depending
// on its size. It is safe for concurrent use.
type MetaCodec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

// NewMetaCodec creates a codec. A non-positive threshold uses the default.
func NewMetaCodec(threshold int) (*MetaCodec, error) {
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &MetaCodec{encoder: encoder, decoder: decoder, threshold: threshold}, nil
}

// Encode returns exactly one non-nil value: inline JSON or compressed bytes.
// Empty metadata encodes to (nil, nil).
func (c *MetaCodec) Encode(meta map[string]any) (json.RawMessage, []byte, error) {
	if len(meta) == 0 {
		return nil, nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal meta: %w", err)
	}
	if len(raw) <= c.threshold {
		return raw, nil, nil
	}
	return nil, c.encoder.EncodeAll(raw, nil), nil
}

// Decode reverses Encode.
func (c *MetaCodec) Decode(inline json.RawMessage, compressed []byte) (map[string]any, error) {
	raw := []byte(inline)
	if len(compressed) > 0 {
		var err error
		raw, err = c.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress meta: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return meta, nil
}
