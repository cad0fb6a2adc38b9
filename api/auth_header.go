package api

import (
	"errors"
	"net/http"
	"strings"
	"unsafe"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// tokenQueryParam carries the token for clients that cannot set headers,
// such as browser EventSource connections to the board stream.
const tokenQueryParam = "token"

// tokenFromRequest returns the compact JWT presented with r. The
// Authorization header wins; the query parameter is only read when the
// header is absent.
func tokenFromRequest(r *http.Request) ([]byte, error) {
	if header := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization)); header != "" {
		return tokenFromBearer(header)
	}
	if q := strings.TrimSpace(r.URL.Query().Get(tokenQueryParam)); q != "" {
		return compactToken(q)
	}
	return nil, errMissingAuthorization
}

// tokenFromBearer strips the Bearer scheme from an Authorization value.
func tokenFromBearer(value string) ([]byte, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || scheme != "Bearer" {
		return nil, errBadAuthorization
	}
	return compactToken(strings.TrimLeft(token, " "))
}

// compactToken checks for the three dot separated parts of a compact JWT and
// returns the token without copying it.
func compactToken(token string) ([]byte, error) {
	if token == "" || strings.Count(token, ".") != 2 {
		return nil, errBadAuthorization
	}
	return readOnlyBytes(token), nil
}

func readOnlyBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func readOnlyString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
