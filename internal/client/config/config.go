package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/configx"
	"github.com/dmitrijs2005/caresync/internal/flagx"
	"github.com/dmitrijs2005/caresync/internal/remote/s3store"
)

// Remote backends the client can synchronize against.
const (
	BackendGRPC   = "grpc"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Config holds runtime settings for the caresync client.
type Config struct {
	Backend            string
	ServerEndpointAddr string
	AccessToken        string
	Identity           string
	DatabasePath       string

	AutoSync            bool
	AutoSyncDebounce    time.Duration
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration

	S3 s3store.Config
	// RedisAddr enables a cross-process round lease when set.
	RedisAddr string
	LogLevel  string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Backend = BackendGRPC
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "caresync.db"
	c.AutoSync = true
	c.AutoSyncDebounce = 2 * time.Second
	c.SyncInterval = 5 * time.Minute
	c.OnlineCheckInterval = 3 * time.Second
	c.S3 = s3store.Config{Region: "us-east-1", Bucket: "caresync", UsePathStyle: true}
	c.LogLevel = "info"
}

// Validate rejects combinations the client cannot run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGRPC:
		if c.ServerEndpointAddr == "" {
			return fmt.Errorf("backend grpc needs a server address")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("backend s3 needs a bucket")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Identity == "" {
		return fmt.Errorf("identity is required")
	}
	return nil
}

// Load builds a Config from defaults, the environment, an optional file and
// flags, in that order.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	configx.LoadDotEnv(".env")
	if err := parseEnv(cfg, configx.NewEnv(common.EnvPrefix)); err != nil {
		return nil, err
	}
	if path := flagx.ConfigFile(args); path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over os.Args. It panics on invalid configuration.
func LoadConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}
