package config

import (
	"time"

	"github.com/dmitrijs2005/caresync/internal/configx"
	"github.com/dmitrijs2005/caresync/internal/timex"
)

// FileConfig is the on-disk shape of Config. Absent fields keep the value
// from earlier sources.
type FileConfig struct {
	Backend             *string         `json:"backend" yaml:"backend"`
	ServerEndpointAddr  *string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	AccessToken         *string         `json:"access_token" yaml:"access_token"`
	Identity            *string         `json:"identity" yaml:"identity"`
	DatabasePath        *string         `json:"database_path" yaml:"database_path"`
	AutoSync            *bool           `json:"auto_sync" yaml:"auto_sync"`
	AutoSyncDebounce    *timex.Duration `json:"auto_sync_debounce" yaml:"auto_sync_debounce"`
	SyncInterval        *timex.Duration `json:"sync_interval" yaml:"sync_interval"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	S3                  *S3FileConfig   `json:"s3" yaml:"s3"`
	RedisAddr           *string         `json:"redis_addr" yaml:"redis_addr"`
	LogLevel            *string         `json:"log_level" yaml:"log_level"`
}

type S3FileConfig struct {
	Bucket       *string `json:"bucket" yaml:"bucket"`
	Region       *string `json:"region" yaml:"region"`
	Endpoint     *string `json:"endpoint" yaml:"endpoint"`
	Prefix       *string `json:"prefix" yaml:"prefix"`
	AccessKey    *string `json:"access_key" yaml:"access_key"`
	SecretKey    *string `json:"secret_key" yaml:"secret_key"`
	UsePathStyle *bool   `json:"use_path_style" yaml:"use_path_style"`
}

func parseFile(cfg *Config, path string) error {
	c := &FileConfig{}
	if err := configx.DecodeFile(path, c); err != nil {
		return err
	}

	set(&cfg.Backend, c.Backend)
	set(&cfg.ServerEndpointAddr, c.ServerEndpointAddr)
	set(&cfg.AccessToken, c.AccessToken)
	set(&cfg.Identity, c.Identity)
	set(&cfg.DatabasePath, c.DatabasePath)
	set(&cfg.AutoSync, c.AutoSync)
	setDuration(&cfg.AutoSyncDebounce, c.AutoSyncDebounce)
	setDuration(&cfg.SyncInterval, c.SyncInterval)
	setDuration(&cfg.OnlineCheckInterval, c.OnlineCheckInterval)
	set(&cfg.RedisAddr, c.RedisAddr)
	set(&cfg.LogLevel, c.LogLevel)

	if s := c.S3; s != nil {
		set(&cfg.S3.Bucket, s.Bucket)
		set(&cfg.S3.Region, s.Region)
		set(&cfg.S3.Endpoint, s.Endpoint)
		set(&cfg.S3.Prefix, s.Prefix)
		set(&cfg.S3.AccessKey, s.AccessKey)
		set(&cfg.S3.SecretKey, s.SecretKey)
		set(&cfg.S3.UsePathStyle, s.UsePathStyle)
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
