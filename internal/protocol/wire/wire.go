// Package wire converts dictionaries to and from framed wire buffers.
package wire

import (
	"fmt"

	"github.com/danmuck/ipcwire/internal/object"
	"github.com/danmuck/ipcwire/internal/protocol"
	"github.com/danmuck/ipcwire/internal/protocol/codec"
	"github.com/danmuck/ipcwire/internal/protocol/frame"
)

// Codec frames payloads produced by an external codec.
type Codec struct {
	payload codec.Codec
}

// New wraps payload. A nil payload codec selects msgpack.
func New(payload codec.Codec) *Codec {
	if payload == nil {
		payload = codec.Msgpack{}
	}
	return &Codec{payload: payload}
}

// PayloadCodec returns the wrapped external codec.
func (c *Codec) PayloadCodec() codec.Codec {
	return c.payload
}

// Encode serializes the dictionary v and prefixes it with a frame header
// carrying id. No partial buffer is returned on failure.
func (c *Codec) Encode(v *object.Value, id uint64) ([]byte, error) {
	if v.Type() != object.TypeDictionary {
		return nil, fmt.Errorf("%w: got %s", protocol.ErrNotDictionary, v.Type())
	}
	payload, err := c.payload.Encode(v)
	if err != nil {
		return nil, err
	}
	return frame.Pack(payload, id), nil
}

// Decode reconstructs a graph from exactly the payload bytes given. The
// caller owns the result.
func (c *Codec) Decode(payload []byte) (*object.Value, error) {
	return c.payload.Decode(payload)
}

// Unpack validates the frame header at the start of buf and decodes the
// payload it declares, returning the value and the correlation id.
func (c *Codec) Unpack(buf []byte) (*object.Value, uint64, error) {
	h, payload, err := frame.Split(buf)
	if err != nil {
		return nil, 0, err
	}
	v, err := c.Decode(payload)
	if err != nil {
		return nil, 0, err
	}
	return v, h.ID, nil
}
