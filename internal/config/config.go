package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ipcwire/internal/logging"
	"github.com/danmuck/ipcwire/internal/pipe"
	"github.com/danmuck/ipcwire/internal/protocol/codec"
	"github.com/danmuck/ipcwire/internal/protocol/frame"
	"github.com/danmuck/ipcwire/internal/protocol/wire"
	"github.com/danmuck/ipcwire/internal/transport"
)

const (
	EnvTransport  = "IPCWIRE_TRANSPORT"
	EnvCodec      = "IPCWIRE_CODEC"
	EnvRecvBuffer = "IPCWIRE_RECV_BUFFER"
)

type Config struct {
	// Transport names the backend. Empty or unrecognized values fall back to
	// the compiled default.
	Transport      string       `toml:"transport"`
	Codec          string       `toml:"codec"`
	RecvBufferSize int          `toml:"recv_buffer_size"`
	Metrics        bool         `toml:"metrics"`
	Sereal         SerealConfig `toml:"sereal"`
	Log            LogConfig    `toml:"log"`
}

type SerealConfig struct {
	Compression string `toml:"compression"`
	Threshold   int    `toml:"threshold"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Codec:          codec.NameMsgpack,
		RecvBufferSize: pipe.DefaultRecvBufferSize,
		Metrics:        true,
		Sereal:         SerealConfig{Compression: codec.CompressionNone},
	}
}

// Load reads path over Default, applies env overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	md, err := toml.Decode(string(data), out)
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}
	return nil
}

// ApplyEnv overrides cfg from IPCWIRE_* variables.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvTransport); ok {
		cfg.Transport = v
	}
	if v, ok := os.LookupEnv(EnvCodec); ok {
		cfg.Codec = v
	}
	if v, ok := os.LookupEnv(EnvRecvBuffer); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRecvBuffer, err)
		}
		cfg.RecvBufferSize = n
	}
	return nil
}

func Validate(cfg Config) error {
	name := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if transport.Recognized(name) {
		if _, ok := transport.Default().Lookup(name); !ok {
			return fmt.Errorf("transport %q: %w", name, transport.ErrTransportUnavailable)
		}
	}
	if _, err := codec.New(cfg.Codec, cfg.CodecOptions()); err != nil {
		return err
	}
	if cfg.RecvBufferSize <= frame.HeaderSize {
		return fmt.Errorf("recv_buffer_size must exceed %d bytes", frame.HeaderSize)
	}
	if cfg.Sereal.Threshold < 0 {
		return errors.New("sereal.threshold must not be negative")
	}
	if cfg.Log.Level != "" {
		if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
			return fmt.Errorf("log.level %q is not a level", cfg.Log.Level)
		}
	}
	return nil
}

func (c Config) CodecOptions() codec.Options {
	return codec.Options{
		SerealCompression:          c.Sereal.Compression,
		SerealCompressionThreshold: c.Sereal.Threshold,
	}
}

// Selector returns a selector over the default registry. Resolution happens
// on first use.
func (c Config) Selector() *transport.Selector {
	return transport.NewSelector(nil, c.Transport)
}

// Pipe builds a pipe from the config and applies its log level.
func (c Config) Pipe() (*pipe.Pipe, error) {
	payload, err := codec.New(c.Codec, c.CodecOptions())
	if err != nil {
		return nil, err
	}
	if c.Log.Level != "" {
		logging.SetLevel(c.Log.Level)
	}
	return pipe.New(c.Selector(), wire.New(payload),
		pipe.WithRecvBufferSize(c.RecvBufferSize),
		pipe.WithMetrics(c.Metrics),
	), nil
}
