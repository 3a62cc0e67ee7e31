package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Blob encodings stored alongside knowledge records.
const (
	EncodingJSON = "json"
	EncodingZstd = "zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// EncodeBlob serializes k as zstd-compressed JSON.
func EncodeBlob(k *MapKnowledge) ([]byte, error) {
	if k == nil {
		k = New()
	}
	raw, err := json.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("marshal knowledge: %w", err)
	}
	enc, _, err := codec()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, nil), nil
}

// DecodeBlob reverses EncodeBlob. Plain JSON is accepted too, and anything
// undecodable yields an empty knowledge set.
func DecodeBlob(b []byte) *MapKnowledge {
	if bytes.HasPrefix(b, zstdMagic) {
		_, dec, err := codec()
		if err != nil {
			return New()
		}
		raw, err := dec.DecodeAll(b, nil)
		if err != nil {
			return New()
		}
		b = raw
	}
	return Normalize(b)
}
