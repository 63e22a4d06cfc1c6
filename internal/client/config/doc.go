// Package config loads runtime configuration for the caresync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A .env file in the working directory and CARESYNC_* environment variables.
//  3. Optional JSON or YAML file selected with -c or -config.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// # File schema
//
// Durations accept strings like "3s" or integer nanoseconds:
//
//	backend: grpc
//	server_endpoint_addr: 127.0.0.1:50051
//	identity: alice
//	database_path: caresync.db
//	auto_sync: true
//	auto_sync_debounce: 2s
//	sync_interval: 5m
//	online_check_interval: 3s
//	s3:
//	  bucket: care
//	  endpoint: http://127.0.0.1:9000
//	  use_path_style: true
package config
