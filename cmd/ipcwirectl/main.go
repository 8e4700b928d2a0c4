package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/danmuck/ipcwire/internal/config"
	"github.com/danmuck/ipcwire/internal/logging"
	"github.com/danmuck/ipcwire/internal/object"
	"github.com/danmuck/ipcwire/internal/observability"
	"github.com/danmuck/ipcwire/internal/protocol/codec"
	"github.com/danmuck/ipcwire/internal/protocol/frame"
	"github.com/danmuck/ipcwire/internal/protocol/wire"
	_ "github.com/danmuck/ipcwire/internal/transport/unixsock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const usage = `usage: ipcwirectl <command> [flags]

commands:
  loopback   send a sample message over a socketpair and print it
  pack       write a sample message frame to a file
  describe   read a frame file and print its message
  config     write or validate a config file
`

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("ipcwirectl failed")
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "loopback":
		return runLoopback(args[1:], stdout)
	case "pack":
		return runPack(args[1:], stdout)
	case "describe":
		return runDescribe(args[1:], stdout)
	case "config":
		return runConfig(args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := config.ApplyEnv(&cfg); err != nil {
			return config.Config{}, err
		}
		return cfg, config.Validate(cfg)
	}
	return config.Load(path)
}

func runLoopback(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("loopback", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file (defaults plus IPCWIRE_* env when empty)")
	id := fs.Uint64("id", 42, "correlation id")
	showMetrics := fs.Bool("metrics", false, "print pipe counters after the exchange")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.Metrics {
		observability.RegisterMetrics()
	}
	msg, err := loopback(cfg, *id)
	if err != nil {
		return err
	}
	defer object.Release(msg.Value)

	fmt.Fprintf(stdout, "id=%d pid=%d uid=%d\n", msg.ID, msg.Credentials.PID, msg.Credentials.UID)
	fmt.Fprint(stdout, object.Describe(msg.Value))
	if *showMetrics {
		return printMetrics(stdout)
	}
	return nil
}

func runPack(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	out := fs.String("out", "message.frame", "output path")
	codecName := fs.String("codec", codec.NameMsgpack, "payload codec: "+strings.Join(codec.Names(), "|"))
	id := fs.Uint64("id", 42, "correlation id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	payload, err := codec.New(*codecName, codec.Options{})
	if err != nil {
		return err
	}
	msg := sampleMessage()
	defer object.Release(msg)
	buf, err := wire.New(payload).Encode(msg, *id)
	if err != nil {
		return err
	}

	var stream bytes.Buffer
	if err := frame.WriteFrame(&stream, buf, frame.DefaultLimits()); err != nil {
		return err
	}
	if err := os.WriteFile(*out, stream.Bytes(), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d byte frame to %s\n", stream.Len(), *out)
	return nil
}

func runDescribe(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	in := fs.String("in", "message.frame", "frame file")
	codecName := fs.String("codec", codec.NameMsgpack, "payload codec: "+strings.Join(codec.Names(), "|"))
	if err := fs.Parse(args); err != nil {
		return err
	}
	payload, err := codec.New(*codecName, codec.Options{})
	if err != nil {
		return err
	}
	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := frame.ReadFrame(f, frame.DefaultLimits())
	if err != nil {
		return err
	}
	v, id, err := wire.New(payload).Unpack(buf)
	if err != nil {
		return err
	}
	defer object.Release(v)
	fmt.Fprintf(stdout, "id=%d\n", id)
	fmt.Fprint(stdout, object.Describe(v))
	return nil
}

func runConfig(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	output := fs.String("output", "ipcwire.toml", "output path for config template")
	validate := fs.Bool("validate", false, "validate an existing config file")
	input := fs.String("input", "ipcwire.toml", "config path for validation")
	force := fs.Bool("force", false, "overwrite existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *validate {
		if _, err := config.Load(*input); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "validated config at %s\n", *input)
		return nil
	}
	if err := config.WriteTemplate(*output, *force); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote config template to %s\n", *output)
	return nil
}

func printMetrics(stdout io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "ipcwire_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(stdout, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}
