//go:build linux

package main

import (
	"github.com/danmuck/ipcwire/internal/config"
	"github.com/danmuck/ipcwire/internal/object"
	"github.com/danmuck/ipcwire/internal/pipe"
	"github.com/danmuck/ipcwire/internal/transport/unixsock"
)

// loopback sends the sample message across a socketpair and returns what
// arrived on the other end.
func loopback(cfg config.Config, id uint64) (pipe.Message, error) {
	p, err := cfg.Pipe()
	if err != nil {
		return pipe.Message{}, err
	}
	a, b, err := unixsock.Socketpair()
	if err != nil {
		return pipe.Message{}, err
	}
	defer unixsock.Close(a)
	defer unixsock.Close(b)

	msg := sampleMessage()
	defer object.Release(msg)
	if err := p.Send(msg, id, b, a); err != nil {
		return pipe.Message{}, err
	}
	return p.Receive(b)
}
