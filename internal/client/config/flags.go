package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/reservation/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the reservation API (default from Config)
//	-t int      request timeout in seconds (default from Config)
//
// Arguments it does not own are filtered out with flagx.FilterArgs first.
func parseFlags(cfg *Config, osArgs []string) error {
	args := flagx.FilterArgs(osArgs, "a", "t")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the reservation API")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	return nil
}
