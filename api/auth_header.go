package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// bearerToken returns the JWT carried by an Authorization header value.
func bearerToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(raw, bearerPrefix)
	if !ok || token == "" {
		return "", errBadAuthorization
	}
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// requestToken reads the bearer token from the Authorization header. When
// allowQuery is set, browsers that cannot send headers on a websocket
// handshake may pass it as ?token= instead.
func requestToken(r *http.Request, allowQuery bool) (string, error) {
	h := r.Header.Get(echo.HeaderAuthorization)
	if h == "" && allowQuery {
		if t := r.URL.Query().Get("token"); t != "" {
			if strings.Count(t, ".") != 2 {
				return "", errBadAuthorization
			}
			return t, nil
		}
	}
	return bearerToken(h)
}
