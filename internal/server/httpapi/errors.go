package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/reservation/internal/common"
	"github.com/dmitrijs2005/reservation/internal/server/services"
)

// statusFor maps an error to exactly one HTTP status. Anything outside the
// taxonomy is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := services.PublicMessage(err)
	if status == http.StatusInternalServerError {
		// the service already logged the cause
		message = "Internal server error"
	}
	writeJSON(w, status, MessageResponse{Status: statusError, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, MessageResponse{Status: statusError, Message: message})
}
