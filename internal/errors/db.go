package errors

import (
	"context"
	"errors"
	"net"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column list from a unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError classifies an error returned by the product repository. Context errors, missing
// rows, constraint violations and connectivity failures become AppErrors that still wrap the
// original; anything unrecognised is returned as is.
func MapDBError(err error) error {
	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	case errors.As(err, &pgErr):
		return mapPgError(pgErr)
	case pgconn.SafeToRetry(err), errors.As(err, &netErr):
		return Wrap(err, ErrCodeUnavailable, "The catalog database is unavailable.")
	default:
		return err
	}
}

// constraintRules names the field and client message for each catalog constraint.
var constraintRules = map[string]struct{ field, message string }{
	"products_pkey":              {"id", "A product with this id already exists."},
	"products_merchant_slug_key": {"slug", "This merchant already has a product with that slug."},
	"products_external_key":      {"external_id", "This external product has already been imported."},
	"products_price_check":       {"price", "Price must not be negative."},
	"products_rating_check":      {"rating", "Rating must be between 0 and 5."},
}

func mapPgError(pgErr *pgconn.PgError) error {
	code := pgErr.Code
	switch {
	case code == pgerrcode.UniqueViolation:
		return constraintError(ErrCodeConflict, pgErr, "A product with this value already exists.")
	case code == pgerrcode.CheckViolation:
		return constraintError(ErrCodeValidation, pgErr, "This field has an invalid value.")
	case code == pgerrcode.NotNullViolation:
		return constraintError(ErrCodeValidation, pgErr, "This field is required.")
	case code == pgerrcode.InvalidTextRepresentation:
		return Wrap(pgErr, ErrCodeValidation, "Malformed identifier.")
	case code == pgerrcode.QueryCanceled:
		return Wrap(pgErr, ErrCodeTimeout, "Query timed out. Please try again.")
	case pgerrcode.IsConnectionException(code), pgerrcode.IsInsufficientResources(code):
		return Wrap(pgErr, ErrCodeUnavailable, "The catalog database is unavailable.")
	default:
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
}

// constraintError attributes a constraint failure to a field: the server-reported column
// first, then the known constraint, then the key list in the detail message.
func constraintError(code ErrorCode, pgErr *pgconn.PgError, fallback string) error {
	appErr := Wrap(pgErr, code, fallback)
	rule, known := constraintRules[pgErr.ConstraintName]
	if known {
		appErr.Message = rule.message
	}
	switch {
	case pgErr.ColumnName != "":
		appErr.Field = pgErr.ColumnName
	case known:
		appErr.Field = rule.field
	default:
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			appErr.Field = m[1]
		}
	}
	return appErr
}
