// framedump decodes a raw capture of one side of a pool connection and
// logs every message in it.
//
//	framedump --profile v2 --direction client capture.bin
//
// The exit status is non-zero on the first frame that fails to decode.
package main

import (
	"fmt"
	"os"

	"github.com/danmuck/poolwire/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "framedump: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	f, err := os.Open(opts.Capture)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := dump(f, opts, log.Logger)
	log.Info().Int("frames", n).Str("capture", opts.Capture).Msg("dump finished")
	return err
}
