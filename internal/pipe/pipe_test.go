package pipe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/ipcwire/internal/object"
	"github.com/danmuck/ipcwire/internal/protocol"
	"github.com/danmuck/ipcwire/internal/protocol/codec"
	"github.com/danmuck/ipcwire/internal/protocol/frame"
	"github.com/danmuck/ipcwire/internal/protocol/wire"
	"github.com/danmuck/ipcwire/internal/testutil/testlog"
	"github.com/danmuck/ipcwire/internal/transport"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var errInjected = errors.New("injected transport failure")

// memTransport queues whole frames in memory. An empty queue reads as a
// closed peer.
type memTransport struct {
	mu      sync.Mutex
	queue   [][]byte
	sendErr error
	recvErr error
	creds   transport.Credentials
}

func (m *memTransport) Name() string { return "mem" }

func (m *memTransport) Send(_, _ transport.Endpoint, buf []byte, _ []transport.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.queue = append(m.queue, append([]byte(nil), buf...))
	return nil
}

func (m *memTransport) Receive(local transport.Endpoint, buf []byte) (transport.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recvErr != nil {
		return transport.Receipt{}, m.recvErr
	}
	if len(m.queue) == 0 {
		return transport.Receipt{Remote: local}, nil
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	n := copy(buf, next)
	return transport.Receipt{N: n, Remote: local, Credentials: m.creds}, nil
}

func (m *memTransport) PortToString(ep transport.Endpoint) string { return "mem" }

func (m *memTransport) inject(buf []byte) {
	m.mu.Lock()
	m.queue = append(m.queue, buf)
	m.mu.Unlock()
}

func newPipe(t *testing.T, mem *memTransport, opts ...Option) *Pipe {
	t.Helper()
	return New(transport.Fixed(mem), wire.New(nil), opts...)
}

func countFlags() *object.Value {
	dict := object.NewDictionary()
	dict.Set("count", object.NewInt64(5))
	flags := object.NewArray()
	flags.Append(object.NewBool(true))
	flags.Append(object.NewBool(false))
	dict.Set("flags", flags)
	return dict
}

func TestSendReceiveRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			payload, err := codec.New(name, codec.Options{})
			if err != nil {
				t.Fatalf("codec: %v", err)
			}
			mem := &memTransport{creds: transport.Credentials{PID: 100, UID: 501, GID: 20}}
			p := New(transport.Fixed(mem), wire.New(payload), WithMetrics(false))

			before := object.Live()
			in := countFlags()
			if err := p.Send(in, 42, 1, 2); err != nil {
				t.Fatalf("send: %v", err)
			}
			msg, err := p.Receive(2)
			if err != nil {
				t.Fatalf("receive: %v", err)
			}
			if msg.ID != 42 || msg.Remote != 2 {
				t.Fatalf("id=%d remote=%d", msg.ID, msg.Remote)
			}
			if diff := cmp.Diff(mem.creds, msg.Credentials); diff != "" {
				t.Fatalf("credentials mismatch (-want +got):\n%s", diff)
			}
			if !object.Equal(in, msg.Value) {
				t.Fatalf("value mismatch:\n%s", object.Describe(msg.Value))
			}
			if diff := cmp.Diff(in.Keys(), msg.Value.Keys()); diff != "" {
				t.Fatalf("key order changed (-sent +received):\n%s", diff)
			}
			object.Release(in)
			object.Release(msg.Value)
			if got := object.Live(); got != before {
				t.Fatalf("leaked %d values", got-before)
			}
		})
	}
}

func TestReceiveRemoteClosedIsEOF(t *testing.T) {
	testlog.Start(t)
	p := newPipe(t, &memTransport{})
	msg, err := p.Receive(3)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if msg.Value != nil {
		t.Fatalf("closed receive returned a value")
	}
}

func TestReceiveRejectsMalformedFrames(t *testing.T) {
	testlog.Start(t)
	src := countFlags()
	valid, err := wire.New(nil).Encode(src, 7)
	object.Release(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	badVersion := append([]byte(nil), valid...)
	badVersion[frame.HeaderSize-1] = 2

	longLength := frame.EncodeHeader(frame.Header{Length: 100, ID: 1, Version: protocol.Version})
	longLength = append(longLength, 0x80)

	garbage := frame.Pack([]byte{0xc1}, 9)

	cases := []struct {
		name string
		buf  []byte
		want error
	}{
		{"version", badVersion, protocol.ErrUnsupportedVersion},
		{"length", longLength, protocol.ErrLengthExceedsBuffer},
		{"short", []byte{1, 2, 3}, protocol.ErrShortHeader},
		{"payload", garbage, protocol.ErrDecode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := &memTransport{}
			mem.inject(tc.buf)
			before := object.Live()
			msg, err := newPipe(t, mem).Receive(1)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if msg.Value != nil || object.Live() != before {
				t.Fatalf("rejected frame produced a value")
			}
		})
	}
}

func TestSendRejectsOversizeFrame(t *testing.T) {
	testlog.Start(t)
	mem := &memTransport{}
	p := newPipe(t, mem, WithRecvBufferSize(128))
	if p.RecvBufferSize() != 128 {
		t.Fatalf("recv size=%d", p.RecvBufferSize())
	}
	dict := object.NewDictionary()
	defer object.Release(dict)
	dict.Set("blob", object.NewString(strings.Repeat("x", 256)))
	if err := p.Send(dict, 1, 0, 0); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if len(mem.queue) != 0 {
		t.Fatalf("oversize frame reached the transport")
	}
}

func TestTransportFailuresPropagate(t *testing.T) {
	testlog.Start(t)
	mem := &memTransport{sendErr: errInjected, recvErr: errInjected}
	p := newPipe(t, mem)
	dict := countFlags()
	defer object.Release(dict)

	err := p.Send(dict, 1, 0, 0)
	if !errors.Is(err, protocol.ErrTransport) || !errors.Is(err, errInjected) {
		t.Fatalf("send: expected wrapped transport error, got %v", err)
	}
	_, err = p.Receive(0)
	if !errors.Is(err, protocol.ErrTransport) || !errors.Is(err, errInjected) {
		t.Fatalf("receive: expected wrapped transport error, got %v", err)
	}
}

func TestSendNonDictionaryPanics(t *testing.T) {
	testlog.Start(t)
	p := newPipe(t, &memTransport{})
	arr := object.NewArray()
	defer object.Release(arr)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = p.Send(arr, 1, 0, 0)
}

func TestUnavailableTransportSurfaces(t *testing.T) {
	testlog.Start(t)
	reg := transport.NewRegistry()
	p := New(transport.NewSelector(reg, transport.NameMach), nil)
	dict := countFlags()
	defer object.Release(dict)
	if err := p.Send(dict, 1, 0, 0); !errors.Is(err, transport.ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
	if _, err := p.Receive(0); !errors.Is(err, transport.ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
}

func failureCount(t *testing.T, transportName, reason string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "ipcwire_pipe_frame_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["transport"] == transportName && labels["reason"] == reason {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestTruncatedReceiveCountsAsLengthReject(t *testing.T) {
	testlog.Start(t)
	mem := &memTransport{recvErr: fmt.Errorf("mem: %w", transport.ErrTruncated)}
	p := newPipe(t, mem)

	before := failureCount(t, "mem", "length")
	_, err := p.Receive(0)
	if !errors.Is(err, transport.ErrTruncated) || !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected wrapped truncation, got %v", err)
	}
	if got := failureCount(t, "mem", "length") - before; got != 1 {
		t.Fatalf("length rejects delta=%v", got)
	}
}

func TestPipeLogsCarryCodecName(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	payload, err := codec.New(codec.NameSereal, codec.Options{})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	p := New(transport.Fixed(&memTransport{}), wire.New(payload),
		WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)),
		WithMetrics(false),
	)
	if _, err := p.Receive(4); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"codec":"sereal"`) || !strings.Contains(out, "remote side closed connection") {
		t.Fatalf("unexpected log output %q", out)
	}
}
