package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/synocommunity/spkrepo/internal/model"
	"github.com/synocommunity/spkrepo/internal/store"
)

const principalKey = "auth.principal"

// Middleware builds an echo.BasicAuthHandler that resolves the Basic
// username as an api_key (spec.md §6: "the api-key is the username,
// password is ignored") and stashes the resolved User on the echo
// context for handlers to retrieve with Principal. It never rejects a
// request itself — it lets routes that allow anonymous access (the
// catalog and download endpoints) through unauthenticated, and lets
// routes that require a principal call RequireDeveloper/RequireAdmin
// and surface the resulting Error.
func Middleware(s *store.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, _, ok := c.Request().BasicAuth()
			if !ok || apiKey == "" {
				return next(c)
			}
			user, err := s.FindUserByAPIKey(c.Request().Context(), s.Pool, apiKey)
			if err != nil {
				if err == store.ErrNotFound {
					return next(c)
				}
				return err
			}
			c.Set(principalKey, user)
			return next(c)
		}
	}
}

// Principal returns the User resolved by Middleware, or ErrMissingKey /
// ErrInvalidKey if the request carried no recognizable api-key. Handlers
// that require authentication call this first.
func Principal(c echo.Context) (model.User, error) {
	v := c.Get(principalKey)
	if v == nil {
		if _, _, ok := c.Request().BasicAuth(); ok {
			return model.User{}, ErrInvalidKey
		}
		return model.User{}, ErrMissingKey
	}
	return *v.(*model.User), nil
}

// WriteError renders an *Error (or any error carrying an HTTPStatus()
// int method) as the JSON body the HTTP surface returns on auth
// failure (spec.md §6: "Missing/invalid key ⇒ 401").
func WriteError(c echo.Context, err error) error {
	type withStatus interface{ HTTPStatus() int }
	status := http.StatusUnauthorized
	if e, ok := err.(withStatus); ok {
		status = e.HTTPStatus()
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
