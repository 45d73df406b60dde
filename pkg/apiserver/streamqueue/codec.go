package streamqueue

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"streamq/pkg/apiserver/messaging"
)

// Codec is the reversible encode/decode pair applied to queue entries before
// storage and transport. Decode of malformed bytes fails with
// ErrCorruptMessage; it never coerces to a default value.
type Codec = messaging.MessageCodec[EventMessage]

// codecFor selects the storage codec for a queue. Compressed queues trade CPU
// for smaller entries in the backend; both codecs share the same JSON data
// model so payload round-trips are identical.
func codecFor(compress bool) Codec {
	if compress {
		return ZstdCodec{}
	}
	return JSONCodec{}
}

// JSONCodec encodes messages as plain JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(m EventMessage) ([]byte, error) {
	return json.Marshal(m)
}

func (JSONCodec) Decode(data []byte) (EventMessage, error) {
	var m EventMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return EventMessage{}, fmt.Errorf("%w: %v", ErrCorruptMessage, err)
	}
	if m.Event == "" {
		return EventMessage{}, fmt.Errorf("%w: missing event discriminant", ErrCorruptMessage)
	}
	return m, nil
}

// zstdEncoder and zstdDecoder are reused across calls; EncodeAll/DecodeAll are
// safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
}

// ZstdCodec encodes messages as a zstd frame wrapping the JSON encoding.
type ZstdCodec struct{}

func (ZstdCodec) Encode(m EventMessage) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (ZstdCodec) Decode(data []byte) (EventMessage, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return EventMessage{}, fmt.Errorf("%w: zstd: %v", ErrCorruptMessage, err)
	}
	return JSONCodec{}.Decode(raw)
}
