package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/client/migrations"
	"github.com/dmitrijs2005/caresync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/caresync/internal/client/repositories/metadata"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Settings metadata.Repository
	Entities *entities.SQLiteRepository
}

func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Settings: metadata.NewSQLiteRepository(db),
		Entities: entities.NewSQLiteRepository(db),
	}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// OpenDatabase opens the local SQLite file at dsn and migrates it.
func OpenDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps SQLite from returning SQLITE_BUSY between the REPL and auto-sync
	db.SetMaxOpenConns(1)
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
