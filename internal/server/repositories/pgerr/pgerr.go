// Package pgerr translates Postgres driver errors into common sentinels.
package pgerr

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	undefinedTable  = "42P01"
	undefinedColumn = "42703"
	uniqueViolation = "23505"
)

// Wrap annotates err with op. Missing tables and columns become
// ErrSchemaMissing so a store without migrations reads as empty.
func Wrap(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTable, undefinedColumn:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, common.ErrSchemaMissing)
		case uniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, common.ErrUUIDConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
