package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/poolwire/internal/config"
	"github.com/spf13/pflag"
)

type options struct {
	Profile     string
	Direction   string
	ConfigPath  string
	Materialize bool
	Capture     string

	profileSet bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("framedump", pflag.ContinueOnError)
	fs.StringVarP(&opts.Profile, "profile", "p", "v2", "protocol generation of the capture (v1, v2)")
	fs.StringVarP(&opts.Direction, "direction", "d", "client", "side that sent the captured bytes (client, server)")
	fs.StringVarP(&opts.ConfigPath, "config", "c", "", "TOML config; --profile overrides its protocol.version")
	fs.BoolVarP(&opts.Materialize, "materialize", "m", false, "decode deferred payloads on the worker pool")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: framedump [flags] capture.bin\n\n%s", fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return options{}, errors.New("expected exactly one capture file")
	}
	opts.Capture = fs.Arg(0)
	opts.profileSet = fs.Changed("profile")
	return opts, nil
}

// resolve turns the flags into a config. The captured sender decides the
// role: bytes sent by workers are what a server reads.
func (o options) resolve() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if o.ConfigPath == "" || o.profileSet {
		cfg.Protocol.Version = o.Profile
	}
	switch strings.ToLower(strings.TrimSpace(o.Direction)) {
	case "client", "worker":
		cfg.Protocol.Role = config.RoleServer
	case "server", "pool":
		cfg.Protocol.Role = config.RoleWorker
	default:
		return config.Config{}, fmt.Errorf("unknown direction %q", o.Direction)
	}
	return cfg, config.Validate(cfg)
}
