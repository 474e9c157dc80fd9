package companion

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"bikeweather/internal/domain"

	"github.com/klauspost/compress/zstd"
)

// EncodingZstd is Content-Encoding header value of compressed payloads.
const EncodingZstd = "zstd"

var encoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("create zstd encoder: %v", err))
		}
		return encoder
	},
}

var decoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("create zstd decoder: %v", err))
		}
		return decoder
	},
}

// EncodePayload marshals and compresses payload.
// Params: validated timeline payload.
// Returns: zstd-compressed JSON body.
func EncodePayload(payload domain.TimelinePayload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal timeline payload: %w", err)
	}
	encoder := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(encoder)
	return encoder.EncodeAll(body, make([]byte, 0, len(body)/2)), nil
}

// DecodePayload decompresses (when encoded) and validates payload.
// Params: raw message body and its content encoding.
// Returns: validated payload or decode error.
func DecodePayload(raw []byte, encoding string) (domain.TimelinePayload, error) {
	body := raw
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "":
	case EncodingZstd:
		decoder := decoderPool.Get().(*zstd.Decoder)
		defer decoderPool.Put(decoder)
		decompressed, err := decoder.DecodeAll(raw, nil)
		if err != nil {
			return domain.TimelinePayload{}, fmt.Errorf("zstd decompression failed: %w", err)
		}
		body = decompressed
	default:
		return domain.TimelinePayload{}, fmt.Errorf("unsupported content encoding %q", encoding)
	}
	return domain.DecodeTimelinePayload(body)
}
