//go:build !linux

package main

import (
	"errors"

	"github.com/danmuck/ipcwire/internal/config"
	"github.com/danmuck/ipcwire/internal/pipe"
)

func loopback(config.Config, uint64) (pipe.Message, error) {
	return pipe.Message{}, errors.New("loopback needs a socketpair transport on this platform")
}
