package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"notification-hub/order-relay/internal/failure"

	"github.com/jackc/pgx/v5/pgconn"
)

// retriableSQLStateClasses are the Postgres error classes caused by the
// connection or by contention rather than by the statement itself.
var retriableSQLStateClasses = map[string]bool{
	"08": true, // connection exception
	"40": true, // transaction rollback (serialization failure, deadlock)
	"53": true, // insufficient resources
	"57": true, // operator intervention (admin shutdown, cancel)
	"58": true, // system error
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *failure.Error
	if errors.As(err, &fe) {
		// already classified further down, e.g. a broker error raised
		// inside a transaction callback
		return err
	}
	return failure.New(kindOf(err), op, err)
}

func kindOf(err error) failure.Kind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 && retriableSQLStateClasses[pgErr.Code[:2]] {
			return failure.RetriableStore
		}
		return failure.UnrecoverableStore
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded):
		return failure.RetriableStore
	}
	return failure.UnrecoverableStore
}
