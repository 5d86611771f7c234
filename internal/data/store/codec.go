package store

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// codec turns entities into row payloads: JSON, zstd-compressed when
// enabled. Each row records whether it is compressed so the setting can
// change between runs.
type codec struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func newCodec(compress bool) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{compress: compress, enc: enc, dec: dec}, nil
}

func (c *codec) encode(v any) ([]byte, bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	if !c.compress {
		return raw, false, nil
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), true, nil
}

func (c *codec) decode(payload []byte, compressed bool, v any) error {
	raw := payload
	if compressed {
		var err error
		raw, err = c.dec.DecodeAll(payload, nil)
		if err != nil {
			return fmt.Errorf("decompress payload: %w", err)
		}
	}
	return json.Unmarshal(raw, v)
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}
