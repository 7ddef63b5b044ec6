package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/safar/axon-pharmacy/internal/account"
	"github.com/safar/axon-pharmacy/internal/assistant"
	"github.com/safar/axon-pharmacy/internal/auth"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/session"
)

func mapErrorToStatus(err error) int {
	var vErrs validator.ValidationErrors
	switch {
	case errors.As(err, &vErrs):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, account.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, database.ErrMedicineNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrUserExists),
		errors.Is(err, database.ErrMedicineExists),
		errors.Is(err, database.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidStatus),
		errors.Is(err, database.ErrInvalidMedicineName),
		errors.Is(err, database.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, assistant.ErrNoResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage turns validator errors into something a client can act on.
// Errors without a mapped status stay opaque.
func errorMessage(err error) string {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		if mapErrorToStatus(err) == http.StatusInternalServerError {
			return http.StatusText(http.StatusInternalServerError)
		}
		return err.Error()
	}

	vErr := vErrs[0]
	switch vErr.Tag() {
	case "required":
		return vErr.Field() + " value missing"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", vErr.Field(), vErr.Param())
	case "email":
		return vErr.Field() + " is not a valid email"
	case "gte", "lte":
		return vErr.Field() + " is out of range"
	default:
		return http.StatusText(http.StatusBadRequest)
	}
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String(traceKey, traceID(c)),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorMessage(err)})
}
