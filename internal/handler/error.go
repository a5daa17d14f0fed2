package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/haatos/forgeci/internal/forge"
	"github.com/haatos/forgeci/internal/service"
	"github.com/labstack/echo/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func ErrorHandler(err error, c echo.Context) {
	switch e := err.(type) {
	case *echo.HTTPError:
		if e.Internal != nil {
			c.Logger().Errorf(
				"handler internal error %s [%d]: %+v\n",
				c.Request().URL.Path, e.Code, e.Internal,
			)
		}
		if err := c.JSON(e.Code, map[string]any{"message": e.Message}); err != nil {
			log.Printf("err returning json: %+v\n", err)
		}
	default:
		c.Logger().Errorf("handler error: %+v\n", e)
		if err := c.JSON(
			http.StatusInternalServerError,
			map[string]any{"message": "something went terribly wrong"},
		); err != nil {
			log.Printf("err returning json: %+v\n", err)
		}
	}
}

func isUniqueConstraintError(err error) bool {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func newError(err error, status int, message string) error {
	e := echo.NewHTTPError(status, message)
	if err != nil {
		e = e.WithInternal(err)
	}
	return e
}

// serviceError maps the service error taxonomy onto HTTP statuses. Errors
// outside the taxonomy fall through as 500s with a generic message so
// internals never leak to callers.
func serviceError(err error) error {
	var (
		authErr       service.AuthenticationError
		validationErr service.ValidationError
		notFoundErr   service.NotFoundError
		completedErr  service.AlreadyCompletedError
		transitionErr service.InvalidTransitionError
		credentialErr service.CredentialError
		transientErr  forge.TransientError
	)
	switch {
	case errors.As(err, &authErr):
		return newError(err, http.StatusUnauthorized, authErr.Message)
	case errors.As(err, &validationErr):
		return newError(err, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &notFoundErr):
		return newError(err, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &completedErr):
		return newError(err, http.StatusConflict, completedErr.Error())
	case errors.As(err, &transitionErr):
		return newError(err, http.StatusConflict, transitionErr.Error())
	case errors.As(err, &credentialErr):
		// Operator problem (e.g. rotated encryption key), not caller input.
		return newError(err, http.StatusInternalServerError, "stored credential is unusable")
	case errors.As(err, &transientErr):
		return newError(err, http.StatusBadGateway, "provider temporarily unavailable")
	default:
		return newError(err, http.StatusInternalServerError, "something went wrong")
	}
}
