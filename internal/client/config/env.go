package config

import (
	"errors"

	"github.com/dmitrijs2005/caresync/internal/configx"
)

// parseEnv reads CARESYNC_* variables: BACKEND, SERVER_ADDR, TOKEN, IDENTITY,
// DB_PATH, AUTO_SYNC, AUTO_SYNC_DEBOUNCE, SYNC_INTERVAL, ONLINE_CHECK_INTERVAL,
// S3_BUCKET, S3_REGION, S3_ENDPOINT, S3_PREFIX, S3_ACCESS_KEY, S3_SECRET_KEY,
// REDIS_ADDR and LOG_LEVEL.
func parseEnv(cfg *Config, env *configx.Env) error {
	env.String("BACKEND", &cfg.Backend)
	env.String("SERVER_ADDR", &cfg.ServerEndpointAddr)
	env.String("TOKEN", &cfg.AccessToken)
	env.String("IDENTITY", &cfg.Identity)
	env.String("DB_PATH", &cfg.DatabasePath)
	env.String("S3_BUCKET", &cfg.S3.Bucket)
	env.String("S3_REGION", &cfg.S3.Region)
	env.String("S3_ENDPOINT", &cfg.S3.Endpoint)
	env.String("S3_PREFIX", &cfg.S3.Prefix)
	env.String("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	env.String("S3_SECRET_KEY", &cfg.S3.SecretKey)
	env.String("REDIS_ADDR", &cfg.RedisAddr)
	env.String("LOG_LEVEL", &cfg.LogLevel)

	return errors.Join(
		env.Bool("AUTO_SYNC", &cfg.AutoSync),
		env.Duration("AUTO_SYNC_DEBOUNCE", &cfg.AutoSyncDebounce),
		env.Duration("SYNC_INTERVAL", &cfg.SyncInterval),
		env.Duration("ONLINE_CHECK_INTERVAL", &cfg.OnlineCheckInterval),
	)
}
