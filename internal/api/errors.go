package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
)

// errorHandler renders every error as {"error": ...}.
func errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var message interface{} = http.StatusText(http.StatusInternalServerError)

	var httpErr *echo.HTTPError
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.As(err, &httpErr):
		code = httpErr.Code
		message = httpErr.Message
	case errors.As(err, &fieldErrs):
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
		}
		code = http.StatusBadRequest
		message = fields
	case errors.Is(err, interfaces.ErrNotFound):
		code = http.StatusNotFound
		message = "not found"
	case errors.Is(err, interfaces.ErrConflict):
		code = http.StatusConflict
		message = "conflict"
	}

	if code >= http.StatusInternalServerError {
		log.WithError(err).WithField("uri", c.Request().RequestURI).Error("request failed")
	}
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, echo.Map{"error": message})
}
