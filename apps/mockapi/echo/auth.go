package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	contextAccountKey = "account"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	TokenType string `json:"token_type"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Tokens is the credential pair handed out on login.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

func (s *server) claims(acc Account, tokenType string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    s.opts.AppName,
			Subject:   strconv.Itoa(acc.ID),
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		TokenType: tokenType,
		Email:     acc.Email,
		Role:      acc.Role,
	}
}

// GenerateToken generates a signed HS256 JWT representing the claims.
func GenerateToken(claims *Claims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// IssueTokens returns a fresh access/refresh pair for acc.
func (s *server) IssueTokens(acc Account) (Tokens, error) {
	access, err := GenerateToken(s.claims(acc, tokenAccess, s.opts.AccessTTL), s.opts.SecretKey)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := GenerateToken(s.claims(acc, tokenRefresh, s.opts.RefreshTTL), s.opts.SecretKey)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{Access: access, Refresh: refresh}, nil
}

// parseToken verifies the signature, expiry and type of a token.
func (s *server) parseToken(raw, tokenType string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.opts.SecretKey, nil
	})
	if err != nil || !token.Valid || claims.TokenType != tokenType {
		return nil, errTokenNotValid
	}
	return claims, nil
}

// jwtMiddleware authenticates the request with its Bearer access token.
func (s *server) jwtMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(auth, "Bearer ") {
			return errNotAuthenticated
		}
		claims, err := s.parseToken(strings.TrimPrefix(auth, "Bearer "), tokenAccess)
		if err != nil {
			return err
		}
		id, _ := strconv.Atoi(claims.Subject)
		acc, ok := s.db.Account(id)
		if !ok {
			return errTokenNotValid
		}
		ctx.Set(contextAccountKey, acc)
		return next(ctx)
	}
}

// rolesMiddleware only lets the accounts having one of roles through.
func rolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			acc, err := contextAccount(ctx)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if acc.Role == role {
					return next(ctx)
				}
			}
			return errPermissionDenied
		}
	}
}

func contextAccount(ctx echo.Context) (Account, error) {
	if acc, ok := ctx.Get(contextAccountKey).(Account); ok {
		return acc, nil
	}
	return Account{}, errNotAuthenticated
}
