package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/caresync/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-h string   operations HTTP bind address (empty disables it)
//	-d string   PostgreSQL DSN
//	-s string   access token HMAC secret
//	-t int      access token validity, minutes
//	-l string   log level
//
// Flags owned by other loaders, such as -c, are filtered out first.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.EndpointAddrGRPC, "a", cfg.EndpointAddrGRPC, "address and port to run the gRPC server")
	fs.StringVar(&cfg.EndpointAddrHTTP, "h", cfg.EndpointAddrHTTP, "address and port to run the operations HTTP server")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	tokenTTL := fs.Int("t", int(cfg.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")

	if err := flagx.ParseOwn(fs, args); err != nil {
		return err
	}

	cfg.AccessTokenValidityDuration = time.Duration(*tokenTTL) * time.Minute
	return nil
}
