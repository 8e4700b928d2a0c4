// Package transport owns the transport contract and backend selection.
//
// Ownership boundary:
// - the Transport interface implemented by backends
// - the registry of backends compiled into the binary
// - the once-resolved Selector shared by pipes
package transport

import "errors"

const (
	NameUnix = "unix"
	NameMach = "mach"
)

var (
	ErrTransportUnavailable = errors.New("transport: backend not compiled into this binary")
	ErrTransportExists      = errors.New("transport: backend already registered")
	ErrNilFactory           = errors.New("transport: nil factory")
	// ErrTruncated is wrapped by backends when a message did not fit the
	// receive buffer.
	ErrTruncated = errors.New("transport: message exceeds receive buffer")
)

// Endpoint is an opaque handle addressing a local or remote peer.
type Endpoint uint64

// ResourceKind classifies ancillary resources attached to a message.
type ResourceKind uint8

const (
	ResourceFD ResourceKind = iota + 1
	ResourcePort
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceFD:
		return "fd"
	case ResourcePort:
		return "port"
	default:
		return "unknown"
	}
}

// Resource is a descriptor or port carried alongside a message. It is passed
// through uninterpreted.
type Resource struct {
	Kind   ResourceKind
	Handle uint64
}

// Credentials identify the sending process as reported by the transport.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

// Receipt describes one received message. N == 0 means the remote side
// closed the connection.
type Receipt struct {
	N           int
	Remote      Endpoint
	Resources   []Resource
	Credentials Credentials
}

// Transport moves framed bytes between endpoints. Send and Receive may block
// for as long as the backend's I/O blocks.
type Transport interface {
	Name() string
	Send(local, remote Endpoint, buf []byte, resources []Resource) error
	Receive(local Endpoint, buf []byte) (Receipt, error)
	// PortToString renders an endpoint for diagnostics.
	PortToString(ep Endpoint) string
}
