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
//	-a string   address and port of the caresync server
//	-b string   remote backend: grpc, s3 or memory
//	-k string   access token
//	-u string   synchronizing identity
//	-f string   local database file
//	-y bool     run a sync round automatically after local changes
//	-i int      online check interval (in seconds)
//	-p int      periodic sync interval (in seconds, 0 disables it)
//	-r string   Redis address for the round lease
//	-l string   log level
//
// Flags owned by other loaders, such as -c, are filtered out first.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "remote backend (grpc, s3, memory)")
	fs.StringVar(&cfg.AccessToken, "k", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.Identity, "u", cfg.Identity, "identity")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "local database file")
	fs.BoolVar(&cfg.AutoSync, "y", cfg.AutoSync, "auto-sync after local changes")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	syncInterval := fs.Int("p", int(cfg.SyncInterval.Seconds()), "periodic sync interval (in seconds)")

	if err := flagx.ParseOwn(fs, args); err != nil {
		return err
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	return nil
}
