package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	ctxUserID  = "userID"
	ctxMetrics = "requestMetrics"
)

// userID returns the actor set by authenticate.
func userID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

func metricsOf(c echo.Context) *requestMetrics {
	m, _ := c.Get(ctxMetrics).(*requestMetrics)
	return m
}

// instrument traces a route as operation and logs its outcome.
func instrument(logger *log.Logger, operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path(), operation)
			c.SetRequest(req.WithContext(ctx))
			c.Set(ctxMetrics, m)

			err := next(c)
			status := c.Response().Status
			if err != nil {
				status = statusOf(err)
				m.SetErrorStage(errorStage(status))
			}
			m.Log(status, err)
			return err
		}
	}
}

func errorStage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "auth"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limit"
	case http.StatusBadRequest:
		return "validation"
	}
	if status >= http.StatusInternalServerError {
		return "internal"
	}
	return ""
}

// authenticate resolves the actor from the bearer token. With allowQuery the
// token may also come from ?token=.
func authenticate(auth Authenticator, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := metricsOf(c)
			start := time.Now()
			token, err := requestToken(c.Request(), allowQuery)
			var id string
			if err == nil {
				id, err = auth.UserIDFromToken(token)
			}
			m.ObserveAuth(time.Since(start))
			if err != nil {
				return unauthorized(err)
			}
			m.SetActor(id)
			c.Set(ctxUserID, id)

			handleStart := time.Now()
			err = next(c)
			m.ObserveHandle(time.Since(handleStart))
			return err
		}
	}
}

// limit rejects actors that exceed their request budget with 429.
func limit(pool *limiterPool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !pool.Allow(userID(c)) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers
// see plain JSON. Invalid gzip payloads are rejected with 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}
			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return badRequest("invalid gzip body", err)
			}
			req.Body = &gzipReadCloser{Reader: gr, body: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
