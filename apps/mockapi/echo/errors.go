package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

// errDetail is a DRF style {"detail": ..} error, with an optional code.
type errDetail struct {
	Status int
	Detail string
	Code   string
}

func (e *errDetail) Error() string { return e.Detail }

var (
	errNotAuthenticated  = &errDetail{Status: http.StatusUnauthorized, Detail: "Authentication credentials were not provided."}
	errTokenNotValid     = &errDetail{Status: http.StatusUnauthorized, Detail: "Given token not valid for any token type", Code: "token_not_valid"}
	errRefreshNotValid   = &errDetail{Status: http.StatusUnauthorized, Detail: "Token is invalid or expired", Code: "token_not_valid"}
	errNoActiveAccount   = &errDetail{Status: http.StatusUnauthorized, Detail: "No active account found with the given credentials"}
	errPermissionDenied  = &errDetail{Status: http.StatusForbidden, Detail: "You do not have permission to perform this action."}
	errNotFound          = &errDetail{Status: http.StatusNotFound, Detail: "Not found."}
	errServerErrorDetail = "A server error occurred."
)

// fieldErrors is a DRF style {"field": ["msg", ..]} error.
type fieldErrors map[string][]string

func (e fieldErrors) Error() string { return "invalid input" }

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler writing the DRF error bodies.
func newAppHTTPErrorHandler(logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message interface{}
		)

		switch origErr := errors.Cause(err).(type) {
		case *errDetail:
			code = origErr.Status
			body := echo.Map{"detail": origErr.Detail}
			if origErr.Code != "" {
				body["code"] = origErr.Code
			}
			message = body
		case fieldErrors:
			code = http.StatusBadRequest
			message = origErr
		case *core.ValidationError:
			code = http.StatusBadRequest
			message = origErr.FieldErrors()
		case *echo.HTTPError:
			code = origErr.Code
			detail := http.StatusText(code)
			if code == http.StatusNotFound {
				detail = errNotFound.Detail
			} else if msg, ok := origErr.Message.(string); ok {
				detail = msg
			}
			message = echo.Map{"detail": detail}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = echo.Map{"detail": errServerErrorDetail}
			if logger != nil {
				args := []interface{}{errors.Wrap(err, errServerErrorDetail)}
				if acc, aErr := contextAccount(ctx); aErr == nil {
					args = append(args, acc.Identity())
				}
				logger.Error(errServerErrorDetail, args...)
			}
		}

		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
