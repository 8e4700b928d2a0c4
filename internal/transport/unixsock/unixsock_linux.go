//go:build linux

package unixsock

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/ipcwire/internal/transport"
	"golang.org/x/sys/unix"
)

// maxResources bounds the descriptors accepted with one message.
const maxResources = 64

var (
	ErrTruncated       = fmt.Errorf("unixsock: %w", transport.ErrTruncated)
	ErrControlTrunc    = errors.New("unixsock: ancillary data truncated")
	ErrUnsupportedKind = errors.New("unixsock: only fd resources can be sent")
)

func init() {
	transport.Register(transport.NameUnix, func() (transport.Transport, error) {
		return New(), nil
	})
}

// Transport implements transport.Transport over SOCK_SEQPACKET sockets.
type Transport struct{}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Name() string { return transport.NameUnix }

// Send writes buf as one message on remote, attaching fd resources.
func (t *Transport) Send(local, remote transport.Endpoint, buf []byte, resources []transport.Resource) error {
	var oob []byte
	if len(resources) > 0 {
		fds := make([]int, 0, len(resources))
		for _, r := range resources {
			if r.Kind != transport.ResourceFD {
				return fmt.Errorf("%w: %s", ErrUnsupportedKind, r.Kind)
			}
			fds = append(fds, int(r.Handle))
		}
		oob = unix.UnixRights(fds...)
	}
	for {
		err := unix.Sendmsg(int(remote), buf, oob, nil, unix.MSG_NOSIGNAL)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("unixsock: sendmsg fd=%d: %w", remote, err)
		}
		return nil
	}
}

// Receive reads one message from local. The peer of a connected socket is
// local itself, so Remote echoes local.
func (t *Transport) Receive(local transport.Endpoint, buf []byte) (transport.Receipt, error) {
	oob := make([]byte, unix.CmsgSpace(maxResources*4))
	var (
		n, oobn, flags int
		err            error
	)
	for {
		n, oobn, flags, _, err = unix.Recvmsg(int(local), buf, oob, unix.MSG_CMSG_CLOEXEC)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return transport.Receipt{}, fmt.Errorf("unixsock: recvmsg fd=%d: %w", local, err)
	}

	receipt := transport.Receipt{N: n, Remote: local}
	if oobn > 0 {
		resources, perr := parseRights(oob[:oobn])
		// descriptors already installed in this process are handed back even
		// when the message itself is rejected so the caller can close them
		receipt.Resources = resources
		if perr != nil {
			return receipt, perr
		}
	}
	if flags&unix.MSG_TRUNC != 0 {
		return receipt, fmt.Errorf("%w: fd=%d capacity=%d", ErrTruncated, local, len(buf))
	}
	if flags&unix.MSG_CTRUNC != 0 {
		return receipt, ErrControlTrunc
	}
	if n == 0 {
		return receipt, nil
	}

	ucred, err := unix.GetsockoptUcred(int(local), unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return receipt, fmt.Errorf("unixsock: peer credentials fd=%d: %w", local, err)
	}
	receipt.Credentials = transport.Credentials{PID: ucred.Pid, UID: ucred.Uid, GID: ucred.Gid}
	return receipt, nil
}

func parseRights(oob []byte) ([]transport.Resource, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("unixsock: parse control message: %w", err)
	}
	var out []transport.Resource
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			return out, fmt.Errorf("unixsock: parse rights: %w", err)
		}
		for _, fd := range fds {
			out = append(out, transport.Resource{Kind: transport.ResourceFD, Handle: uint64(fd)})
		}
	}
	return out, nil
}

func (t *Transport) PortToString(ep transport.Endpoint) string {
	return "fd:" + strconv.FormatUint(uint64(ep), 10)
}

// Socketpair returns two connected endpoints.
func Socketpair() (transport.Endpoint, transport.Endpoint, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("unixsock: socketpair: %w", err)
	}
	return transport.Endpoint(fds[0]), transport.Endpoint(fds[1]), nil
}

// Listen binds a listening socket at path.
func Listen(path string, backlog int) (transport.Endpoint, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("unixsock: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("unixsock: bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("unixsock: listen %s: %w", path, err)
	}
	return transport.Endpoint(fd), nil
}

// Accept waits for one connection on a listening endpoint.
func Accept(listener transport.Endpoint) (transport.Endpoint, error) {
	for {
		fd, _, err := unix.Accept4(int(listener), unix.SOCK_CLOEXEC)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("unixsock: accept: %w", err)
		}
		return transport.Endpoint(fd), nil
	}
}

// Dial connects to a listening socket at path.
func Dial(path string) (transport.Endpoint, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("unixsock: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("unixsock: connect %s: %w", path, err)
	}
	return transport.Endpoint(fd), nil
}

// Close releases an endpoint or a received fd resource.
func Close(ep transport.Endpoint) error {
	return unix.Close(int(ep))
}
