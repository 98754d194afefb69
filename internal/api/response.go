package api

import (
	"errors"
	"net/http"

	"market_engine/internal/domain"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope every JSON endpoint returns.
type APIResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string         `json:"code,omitempty"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// DataResponse writes data with the given status.
func DataResponse(c echo.Context, status int, data any) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

// SuccessResponse writes a 200 envelope.
func SuccessResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusOK, data)
}

// CreatedResponse writes a 201 envelope.
func CreatedResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusCreated, data)
}

// BadRequestResponse writes a 400 envelope.
func BadRequestResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse maps engine errors onto HTTP statuses.
func AppErrorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrInvalidPair):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotRunning):
		status = http.StatusServiceUnavailable
	}

	var iv *domain.InvariantViolation
	if errors.As(err, &iv) {
		status = http.StatusConflict
	}
	return DataResponse(c, status, err.Error())
}
