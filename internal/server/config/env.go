package config

import "github.com/dmitrijs2005/caresync/internal/configx"

// parseEnv reads CARESYNC_* variables:
//
//	GRPC_ADDR, HTTP_ADDR, DATABASE_DSN, SECRET_KEY, TOKEN_TTL, LOG_LEVEL
func parseEnv(cfg *Config, env *configx.Env) error {
	env.String("GRPC_ADDR", &cfg.EndpointAddrGRPC)
	env.String("HTTP_ADDR", &cfg.EndpointAddrHTTP)
	env.String("DATABASE_DSN", &cfg.DatabaseDSN)
	env.String("SECRET_KEY", &cfg.SecretKey)
	env.String("LOG_LEVEL", &cfg.LogLevel)
	return env.Duration("TOKEN_TTL", &cfg.AccessTokenValidityDuration)
}
