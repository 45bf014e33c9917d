package factory

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

func NewModuleLogger(module string) logrus.FieldLogger {
	return logrus.WithField("module", module)
}

// LoggerWithContext adds the request id, if any, to a module logger.
func LoggerWithContext(logger logrus.FieldLogger, c echo.Context) logrus.FieldLogger {
	if c == nil {
		return logger
	}

	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = c.Request().Header.Get(requestIDHeader)
	}
	if requestID == "" {
		return logger
	}

	return logger.WithField("request_id", requestID)
}
