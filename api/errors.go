package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-service/domain"
)

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

var kindStatus = []struct {
	kind   error
	status int
}{
	{domain.ErrBadRequest, http.StatusBadRequest},
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrConflict, http.StatusConflict},
}

// statusOf maps an error to the HTTP status it is reported with.
func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	kind := domain.KindOf(err)
	for _, ks := range kindStatus {
		if kind == ks.kind {
			return ks.status
		}
	}
	return http.StatusInternalServerError
}

func messageOf(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
		return http.StatusText(he.Code)
	}
	return domain.MessageOf(err)
}

func badRequest(message string, err error) error {
	return &domain.Error{Kind: domain.ErrBadRequest, Message: message, Err: err}
}

func unauthorized(err error) error {
	return &domain.Error{Kind: domain.ErrUnauthorized, Message: err.Error(), Err: err}
}

// errorHandler writes every failed request as {statusCode, error, message}.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Request().Method,
				"route":  c.Path(),
			}).Error("request failed")
		}
		body := errorResponse{
			StatusCode: status,
			Error:      http.StatusText(status),
			Message:    messageOf(err),
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.WithError(err).Debug("failed to write error response")
		}
	}
}
