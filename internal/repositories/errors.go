package repositories

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// amounts travel as decimal text: $n::numeric on the way in, col::text out
func parseAmount(s string) (*uint256.Int, error) {
	return uint256.FromDecimal(s)
}
