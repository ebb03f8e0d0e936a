package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

type authApi struct {
	s *server
}

func registerAuthAPI(e *echo.Echo, s *server) {
	api := authApi{s: s}

	e.POST("/auth/jwt/create", api.login)
	e.POST("/auth/jwt/refresh", api.refreshToken)
	e.POST("/register", api.register)
	e.GET("/auth/users/me", api.me, s.jwtMiddleware)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data user.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	data.Clean()
	if data.Email == "" || data.Password == "" {
		flds := fieldErrors{}
		if data.Email == "" {
			flds["email"] = []string{"This field is required."}
		}
		if data.Password == "" {
			flds["password"] = []string{"This field is required."}
		}
		return flds
	}

	acc, ok := api.s.db.AccountByEmail(data.Email)
	if !ok || acc.CheckPassword(data.Password) != nil {
		return errNoActiveAccount
	}
	if data.Role != "" && data.Role != acc.Role {
		return errNoActiveAccount
	}

	tokens, err := api.s.IssueTokens(acc)
	if err != nil {
		return errors.Wrap(err, "issuing tokens")
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	var data struct {
		Refresh string `json:"refresh"`
	}
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to refresh request")
	}
	if data.Refresh == "" {
		return fieldErrors{"refresh": {"This field is required."}}
	}

	claims, err := api.s.parseToken(data.Refresh, tokenRefresh)
	if err != nil {
		return errRefreshNotValid
	}
	acc, ok := api.s.db.AccountByEmail(claims.Email)
	if !ok || core.IDOf(acc.ID).String() != claims.Subject {
		return errRefreshNotValid
	}

	access, err := GenerateToken(api.s.claims(acc, tokenAccess, api.s.opts.AccessTTL), api.s.opts.SecretKey)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, Tokens{Access: access})
}

func (api *authApi) register(ctx echo.Context) error {
	var data user.Candidate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Candidate")
	}
	data.Clean()
	if err := api.s.validator.Struct(data); err != nil {
		return err
	}

	acc, err := api.s.db.AddAccount(Account{Name: data.Name, Email: data.Email, Role: data.Role, School: data.School}, data.Password)
	if err != nil {
		if errors.Cause(err) == errEmailExists {
			return fieldErrors{"email": {errEmailExists.Error()}}
		}
		return errors.Wrap(err, "creating account")
	}
	return ctx.JSON(http.StatusCreated, acc.Identity())
}

func (api *authApi) me(ctx echo.Context) error {
	acc, err := contextAccount(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc.Identity())
}
