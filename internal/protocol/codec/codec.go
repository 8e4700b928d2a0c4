// Package codec owns the external payload encodings of an object graph.
//
// A Codec turns a value into a self-contained byte payload and back. It
// knows nothing about frame headers; see package wire for that.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/ipcwire/internal/object"
)

const (
	NameMsgpack = "msgpack"
	NameSereal  = "sereal"
)

var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec encodes and decodes object graphs.
type Codec interface {
	Name() string
	Encode(v *object.Value) ([]byte, error)
	// Decode returns a new graph owned by the caller (refcount 1).
	Decode(b []byte) (*object.Value, error)
}

// Options tune codec construction.
type Options struct {
	// SerealCompression is one of "none", "snappy", "zlib".
	SerealCompression string
	// SerealCompressionThreshold is the minimum body size that gets compressed.
	SerealCompressionThreshold int
}

// New returns the codec registered under name. An empty name selects msgpack.
func New(name string, opts Options) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameMsgpack:
		return Msgpack{}, nil
	case NameSereal:
		return NewSereal(opts.SerealCompression, opts.SerealCompressionThreshold)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Names lists the supported codec names.
func Names() []string {
	names := []string{NameMsgpack, NameSereal}
	sort.Strings(names)
	return names
}
