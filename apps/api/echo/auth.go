package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/user"
)

const (
	jwtAudience     = "Masomo"
	tokenContextKey = "userToken"
	tokenQueryKey   = "token"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the portal; this service only verifies them.
type Claims struct {
	jwt.StandardClaims
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// UserID is the authenticated user's id.
func (c Claims) UserID() string { return c.Subject }

type authenticator struct {
	config middleware.JWTConfig
}

func newAuthenticator(conf *core.Config) authenticator {
	return authenticator{
		config: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    tokenContextKey,
			Claims:        new(Claims),
		},
	}
}

// queryConfig reads the token from the query string, for clients that cannot set headers (websockets).
func (a authenticator) queryConfig() middleware.JWTConfig {
	cfg := a.config
	cfg.TokenLookup = "query:" + tokenQueryKey
	return cfg
}

func GetUserClaims(usr user.User, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  jwtAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:    usr.Name,
		Email:   usr.Email,
		Role:    usr.Role,
		IsAdmin: usr.IsAdmin(),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	auth := newAuthenticator(conf)
	method := jwt.GetSigningMethod(auth.config.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(auth.config.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextUser rebuilds the acting user from the token, for logs.
func contextUser(claims Claims) user.User {
	return user.User{ID: claims.Subject, Name: claims.Name, Email: claims.Email, Role: claims.Role}
}
