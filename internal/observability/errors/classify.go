// Package errors classifies errors into low-cardinality names for metric tags and logs.
package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker"

	apperrors "github.com/marketplace/catalog-api/internal/errors"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
//
// Known failure modes get stable names (timeout, canceled, app_<code>, pg_<sqlstate>, circuit_open);
// anything else is named after the innermost concrete error type in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, gobreaker.ErrOpenState), goerrors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != "" {
		return "app_" + string(appErr.Code)
	}
	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) && pgErr.Code != "" {
		return "pg_" + strings.ToLower(pgErr.Code)
	}

	return typeName(err)
}

// typeName names the innermost error in a chain by its Go type: *net.OpError becomes
// net_operror. Joined errors are named after their first member.
func typeName(err error) string {
	for {
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			if inner := u.Unwrap(); inner != nil {
				err = inner
				continue
			}
		case interface{ Unwrap() []error }:
			if inner := u.Unwrap(); len(inner) > 0 && inner[0] != nil {
				err = inner[0]
				continue
			}
		}
		break
	}

	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	name = typeNameReplacer.Replace(strings.ToLower(name))
	if name == "" {
		return "unknown"
	}
	return name
}

var typeNameReplacer = strings.NewReplacer(".", "_", "*", "", "[", "_", "]", "")
