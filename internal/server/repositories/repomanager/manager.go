package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/objects"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/vectors"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Objects(db dbx.DBTX) objects.Repository
	Vectors(db dbx.DBTX) vectors.Repository
}
