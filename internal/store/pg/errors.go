package pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chatplatform/relay/internal/errs"
)

// Postgres error codes we discriminate on.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// classify maps low-level store failures onto the error taxonomy.
// Connectivity problems become StoreUnavailable so the request layer can
// answer 503; constraint violations become Conflict; anything else is
// wrapped as Internal.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return errs.E(errs.Conflict, op, err)
		case codeForeignKeyViolation:
			return errs.E(errs.NotFound, op, err)
		}
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded):
		return errs.E(errs.StoreUnavailable, op, err)
	}

	return errs.E(errs.Internal, op, err)
}
