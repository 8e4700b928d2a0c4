// Package pipe sends and receives dictionary messages over the selected
// transport.
//
// Ownership boundary:
// - encode + frame + transport send
// - transport receive + header validation + decode
//
// Operations are synchronous and block for as long as the transport blocks.
// No operation retries; retry policy belongs to the caller.
package pipe

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/ipcwire/internal/object"
	"github.com/danmuck/ipcwire/internal/observability"
	"github.com/danmuck/ipcwire/internal/protocol"
	"github.com/danmuck/ipcwire/internal/protocol/frame"
	"github.com/danmuck/ipcwire/internal/protocol/wire"
	"github.com/danmuck/ipcwire/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultRecvBufferSize is the fixed receive capacity. Messages whose frame
// exceeds it cannot be received; Send refuses to emit them.
const DefaultRecvBufferSize = 64 * 1024

// Message is one received message. The caller owns Value and any fd
// resources.
type Message struct {
	Remote      transport.Endpoint
	Value       *object.Value
	ID          uint64
	Credentials transport.Credentials
	Resources   []transport.Resource
}

type Option func(*Pipe)

// WithRecvBufferSize sets the receive capacity and the matching send limit.
func WithRecvBufferSize(n int) Option {
	return func(p *Pipe) {
		if n > frame.HeaderSize {
			p.recvSize = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipe) {
		p.logger = logger
	}
}

// WithMetrics toggles prometheus recording.
func WithMetrics(enabled bool) Option {
	return func(p *Pipe) {
		p.metrics = enabled
	}
}

// Pipe binds a wire codec to a once-resolved transport selector.
type Pipe struct {
	selector *transport.Selector
	codec    *wire.Codec
	recvSize int
	logger   zerolog.Logger
	metrics  bool
}

func New(selector *transport.Selector, codec *wire.Codec, opts ...Option) *Pipe {
	if codec == nil {
		codec = wire.New(nil)
	}
	p := &Pipe{
		selector: selector,
		codec:    codec,
		recvSize: DefaultRecvBufferSize,
		logger:   log.Logger,
		metrics:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("codec", codec.PayloadCodec().Name()).Logger()
	return p
}

// RecvBufferSize returns the receive capacity in bytes.
func (p *Pipe) RecvBufferSize() int {
	return p.recvSize
}

// Send encodes the dictionary v with correlation id and hands the frame to
// the transport. v remains owned by the caller. Sending a value that is not
// a dictionary is a programming error and panics.
func (p *Pipe) Send(v *object.Value, id uint64, local, remote transport.Endpoint) error {
	if v.Type() != object.TypeDictionary {
		panic(fmt.Sprintf("pipe: send of %s value, want dictionary", v.Type()))
	}
	t, err := p.selector.Transport()
	if err != nil {
		return err
	}

	buf, err := p.codec.Encode(v, id)
	if err != nil {
		p.logger.Debug().Err(err).Msg("pack failed")
		p.recordFailure(t, observability.RejectEncode)
		return err
	}
	limits := frame.Limits{MaxFrameBytes: uint64(p.recvSize)}
	if err := limits.Check(len(buf)); err != nil {
		p.logger.Debug().Err(err).Msg("frame exceeds receive capacity")
		p.recordFailure(t, observability.RejectTooLarge)
		return err
	}

	if err := t.Send(local, remote, buf, nil); err != nil {
		p.logger.Debug().Err(err).Msg("transport send function failed")
		p.recordFailure(t, observability.RejectTransport)
		return fmt.Errorf("%w: %w", protocol.ErrTransport, err)
	}
	if p.metrics {
		observability.RecordSend(t.Name(), len(buf))
	}
	return nil
}

// Receive blocks for one message on local. When the remote side has closed
// the connection it returns io.EOF, which is not a failure. Malformed
// frames are rejected and never treated as short reads.
func (p *Pipe) Receive(local transport.Endpoint) (Message, error) {
	t, err := p.selector.Transport()
	if err != nil {
		return Message{}, err
	}

	buf := make([]byte, p.recvSize)
	r, err := t.Receive(local, buf)
	if err != nil {
		p.logger.Debug().Err(err).Msg("transport receive function failed")
		p.recordFailure(t, rejectReason(err))
		return Message{Resources: r.Resources}, fmt.Errorf("%w: %w", protocol.ErrTransport, err)
	}
	if r.N == 0 {
		p.logger.Debug().Str("port", t.PortToString(local)).Msg("remote side closed connection")
		if p.metrics {
			observability.RecordRemoteClosed(t.Name())
		}
		return Message{Remote: r.Remote, Resources: r.Resources}, io.EOF
	}

	h, payload, err := frame.Split(buf[:r.N])
	if err != nil {
		p.logger.Debug().Err(err).Int("received", r.N).Msg("invalid frame")
		p.recordFailure(t, rejectReason(err))
		return Message{Remote: r.Remote, Resources: r.Resources}, err
	}
	p.logger.Debug().Uint64("length", h.Length).Uint64("id", h.ID).Msg("frame received")

	v, err := p.codec.Decode(payload)
	if err != nil {
		p.logger.Debug().Err(err).Msg("unpack failed")
		p.recordFailure(t, observability.RejectDecode)
		return Message{Remote: r.Remote, Resources: r.Resources}, err
	}
	if p.metrics {
		observability.RecordReceive(t.Name(), r.N)
	}
	return Message{
		Remote:      r.Remote,
		Value:       v,
		ID:          h.ID,
		Credentials: r.Credentials,
		Resources:   r.Resources,
	}, nil
}

func (p *Pipe) recordFailure(t transport.Transport, reason string) {
	if p.metrics {
		observability.RecordFailure(t.Name(), reason)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnsupportedVersion):
		return observability.RejectVersion
	case errors.Is(err, protocol.ErrLengthExceedsBuffer), errors.Is(err, protocol.ErrShortHeader),
		errors.Is(err, transport.ErrTruncated):
		return observability.RejectLength
	case errors.Is(err, protocol.ErrDecode):
		return observability.RejectDecode
	default:
		return observability.RejectTransport
	}
}
