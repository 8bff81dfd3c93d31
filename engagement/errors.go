package engagement

import (
	stderrors "errors"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

// Failure taxonomy of the engagement core. Handlers match these with
// errors.Is and map them to HTTP statuses; everything underneath stays
// wrapped for context.
var (
	// ErrNotFound: referenced story or member does not exist.
	ErrNotFound = stderrors.New("not found")
	// ErrNotAvailable: story exists but is outside its publication window.
	ErrNotAvailable = stderrors.New("story not available")
	// ErrInvalidArgument: out-of-range rating, malformed progress value or
	// unknown interaction action.
	ErrInvalidArgument = stderrors.New("invalid argument")
	// ErrDuplicateInteraction: a row for (member, story, action) already
	// exists. Caller should toggle/update instead of inserting again.
	ErrDuplicateInteraction = stderrors.New("interaction already exists")
	// ErrAlreadyRated: a plain insert hit an existing (member, story)
	// rating. The public API upserts and never returns this.
	ErrAlreadyRated = stderrors.New("member already rated this story")
	// ErrTransientStore: underlying storage or cache failure. The whole
	// operation is safe to retry.
	ErrTransientStore = stderrors.New("transient store failure")
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation, which is how the storage layer closes check-then-insert races.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// transient wraps an unexpected storage error so errors.Is(err,
// ErrTransientStore) holds while the cause stays readable.
func transient(err error, msg string) error {
	return errors.Wrapf(ErrTransientStore, "%s: %v", msg, err)
}
