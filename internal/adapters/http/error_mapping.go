package httpadapter

import (
	"net/http"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrExpenseNotFound), domain.IsKind(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicate):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage picks the client-facing text for err. Internal details stay in
// the logs.
func errorMessage(err error, status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusConflict:
		return domain.RootMessage(err)
	case http.StatusNotFound:
		if domain.IsKind(err, domain.ErrJobNotFound) {
			return domain.ErrJobNotFound.Error()
		}
		return domain.ErrExpenseNotFound.Error()
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}
