// Package admin implements caresyncctl, the operator tool for a caresync
// server: issuing access tokens, migrating the database and inspecting
// knowledge vectors.
package admin

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/configx"
	"github.com/dmitrijs2005/caresync/internal/server/config"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

// Seams for tests.
var (
	openDB        = repomanager.OpenPostgres
	runMigrations = func(ctx context.Context, db *sql.DB) error {
		return repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db)
	}
)

// defaults mirrors the server: its built-in values overridden by the
// same environment variables the server reads.
func defaults(env *configx.Env) (*config.Config, error) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	env.String("DATABASE_DSN", &cfg.DatabaseDSN)
	env.String("SECRET_KEY", &cfg.SecretKey)
	if err := env.Duration("TOKEN_TTL", &cfg.AccessTokenValidityDuration); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewRootCommand creates the caresyncctl command tree. Flag defaults come
// from env.
func NewRootCommand(env *configx.Env) (*cobra.Command, error) {
	cfg, err := defaults(env)
	if err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:           "caresyncctl",
		Short:         "Operate a caresync server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newTokenCommand(cfg))
	cmd.AddCommand(newMigrateCommand(cfg))
	cmd.AddCommand(newClockCommand(cfg))
	return cmd, nil
}

// Execute runs caresyncctl with the process environment.
func Execute(ctx context.Context, args []string) error {
	configx.LoadDotEnv(".env")
	cmd, err := NewRootCommand(configx.NewEnv(common.EnvPrefix))
	if err != nil {
		return err
	}
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
