package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// serializationFailure is the SQLSTATE emitted when a repeatable-read
// transaction loses a write race.
const serializationFailure = "40001"

// maxTxRetries bounds how often a serialization failure is retried before it
// surfaces to the caller.
const maxTxRetries = 3

// IsSerializationFailure reports whether err is a lost-race transaction abort.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

// WithTxRetry runs fn inside WithTx, retrying serialization failures a bounded
// number of times. The final failure is returned unwrapped so callers can map
// it to their own concurrency error.
func WithTxRetry(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = WithTx(ctx, pool, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
	}
	return err
}
