package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/ipcwire/internal/protocol"
)

// HeaderSize is the encoded size of Header: length(8) id(8) version(4).
const HeaderSize = 20

// Header is the fixed wire header prefixed to every encoded payload.
type Header struct {
	Length  uint64
	ID      uint64
	Version uint32
}

// Limits constrains frame sizes on send and on stream reads.
type Limits struct {
	MaxFrameBytes uint64
}

// DefaultLimits matches the fixed receive buffer of a pipe.
func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 64 * 1024}
}

// Check rejects a frame of total size n that does not fit the limits.
func (l Limits) Check(n int) error {
	if l.MaxFrameBytes > 0 && uint64(n) > l.MaxFrameBytes {
		return fmt.Errorf("%w: %d bytes > %d", protocol.ErrFrameTooLarge, n, l.MaxFrameBytes)
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	putHeader(buf, h)
	return buf
}

func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint64(buf[0:8], h.Length)
	binary.BigEndian.PutUint64(buf[8:16], h.ID)
	binary.BigEndian.PutUint32(buf[16:20], h.Version)
}

// DecodeHeader reads a header from the first HeaderSize bytes of b without
// validating it.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", protocol.ErrShortHeader, len(b))
	}
	return Header{
		Length:  binary.BigEndian.Uint64(b[0:8]),
		ID:      binary.BigEndian.Uint64(b[8:16]),
		Version: binary.BigEndian.Uint32(b[16:20]),
	}, nil
}

// Pack prefixes payload with a header carrying its length, id and the
// current protocol version.
func Pack(payload []byte, id uint64) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, Header{
		Length:  uint64(len(payload)),
		ID:      id,
		Version: protocol.Version,
	})
	copy(buf[HeaderSize:], payload)
	return buf
}

// Split validates the header at the start of buf against the bytes actually
// present and returns the header and exactly Length payload bytes. A header
// claiming more payload than buf holds is rejected, never treated as a short
// read.
func Split(buf []byte) (Header, []byte, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}
	if h.Length > uint64(len(buf)-HeaderSize) {
		return Header{}, nil, fmt.Errorf("%w: length=%d available=%d",
			protocol.ErrLengthExceedsBuffer, h.Length, len(buf)-HeaderSize)
	}
	if h.Version != protocol.Version {
		return Header{}, nil, fmt.Errorf("%w: got %d want %d",
			protocol.ErrUnsupportedVersion, h.Version, protocol.Version)
	}
	return h, buf[HeaderSize : HeaderSize+int(h.Length)], nil
}

// ReadFrame reads one frame from a byte stream. It returns the whole frame
// (header included) so callers can hand it to Split.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var fixed [HeaderSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protocol.ErrShortHeader
		}
		return nil, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return nil, err
	}
	limit := limits.MaxFrameBytes
	if limit == 0 {
		limit = DefaultLimits().MaxFrameBytes
	}
	if limit < HeaderSize || h.Length > limit-HeaderSize {
		return nil, fmt.Errorf("%w: payload %d bytes", protocol.ErrFrameTooLarge, h.Length)
	}

	buf := make([]byte, HeaderSize+int(h.Length))
	copy(buf, fixed[:])
	if h.Length > 0 {
		if _, err := io.ReadFull(r, buf[HeaderSize:]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// WriteFrame writes a packed frame to a byte stream.
func WriteFrame(w io.Writer, buf []byte, limits Limits) error {
	if err := limits.Check(len(buf)); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}
