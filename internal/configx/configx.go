// Package configx decodes config files and environment overlays shared by
// the client and server config loaders.
package configx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DecodeFile reads path into dst. Files ending in .yaml or .yml are decoded
// as YAML, everything else as JSON.
func DecodeFile(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, dst)
	default:
		err = json.Unmarshal(raw, dst)
	}
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads the given .env files into the process environment
// without overriding variables that are already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// Env reads prefixed environment variables into typed fields.
type Env struct {
	Prefix string
	lookup func(string) (string, bool)
}

func NewEnv(prefix string) *Env {
	return &Env{Prefix: prefix, lookup: os.LookupEnv}
}

// NewEnvFromMap is used by tests and by callers that already parsed a .env
// file with godotenv.Read.
func NewEnvFromMap(prefix string, vars map[string]string) *Env {
	return &Env{Prefix: prefix, lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}
}

func (e *Env) String(name string, dst *string) {
	if v, ok := e.lookup(e.Prefix + name); ok && v != "" {
		*dst = v
	}
}

func (e *Env) Bool(name string, dst *bool) error {
	v, ok := e.lookup(e.Prefix + name)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", e.Prefix, name, err)
	}
	*dst = b
	return nil
}

func (e *Env) Duration(name string, dst *time.Duration) error {
	v, ok := e.lookup(e.Prefix + name)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", e.Prefix, name, err)
	}
	*dst = d
	return nil
}
