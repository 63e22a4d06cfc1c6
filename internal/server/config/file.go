package config

import (
	"github.com/dmitrijs2005/caresync/internal/configx"
	"github.com/dmitrijs2005/caresync/internal/timex"
)

// FileConfig is the on-disk shape of Config. Durations accept "1h" style
// strings or integer nanoseconds. Absent fields keep their previous value.
type FileConfig struct {
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	EndpointAddrHTTP            *string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDSN                 *string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                   *string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	LogLevel                    *string         `json:"log_level" yaml:"log_level"`
}

func parseFile(cfg *Config, path string) error {
	c := &FileConfig{}
	if err := configx.DecodeFile(path, c); err != nil {
		return err
	}

	setString(&cfg.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&cfg.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	setString(&cfg.LogLevel, c.LogLevel)
	if c.AccessTokenValidityDuration != nil {
		cfg.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
