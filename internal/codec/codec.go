package codec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/luciancaetano/wspipe"
)

// MaxPayloadSize bounds a single encoded payload. Inbound frames are bounded
// by the connection's read limit before they reach a decoder.
const MaxPayloadSize = 10 * 1024 * 1024 // 10MB

// Decoder turns the text of a frame into an inbound message.
type Decoder[I any] interface {
	Decode(text string) (I, error)
}

// Encoder turns an outbound message into the text of a frame.
type Encoder[O any] interface {
	Encode(msg O) ([]byte, error)
}

// Codec is the pair of conversions a connection needs.
type Codec[I, O any] interface {
	Decoder[I]
	Encoder[O]
}

type jsonCodec[I, O any] struct{}

// JSON returns a codec that maps frames to and from JSON documents.
func JSON[I, O any]() Codec[I, O] {
	return jsonCodec[I, O]{}
}

// Decode decodes text into a fresh I.
func (jsonCodec[I, O]) Decode(text string) (I, error) {
	var msg I
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return msg, errors.Wrap(err, "decode json message")
	}
	return msg, nil
}

// Encode encodes msg as a JSON document.
func (jsonCodec[I, O]) Encode(msg O) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "encode json message")
	}
	if len(data) > MaxPayloadSize {
		return nil, errors.Wrapf(wspipe.ErrPayloadTooLarge, "payload size %d exceeds maximum %d bytes", len(data), MaxPayloadSize)
	}
	return data, nil
}

// Funcs adapts a pair of functions to Codec.
type Funcs[I, O any] struct {
	DecodeFunc func(text string) (I, error)
	EncodeFunc func(msg O) ([]byte, error)
}

func (f Funcs[I, O]) Decode(text string) (I, error) {
	return f.DecodeFunc(text)
}

func (f Funcs[I, O]) Encode(msg O) ([]byte, error) {
	return f.EncodeFunc(msg)
}

// Text passes frame text through unchanged in both directions.
func Text() Codec[string, string] {
	return Funcs[string, string]{
		DecodeFunc: func(text string) (string, error) { return text, nil },
		EncodeFunc: func(msg string) ([]byte, error) { return []byte(msg), nil },
	}
}
