package httpx

import (
	"errors"
	"net/http"
)

// StatusMapper lets domain packages attach their own error-to-status mapping
// without httpx importing them.
type StatusMapper interface {
	HTTPStatus() int
}

// RespondError writes err as a problem-details response. Errors implementing
// StatusMapper choose their own status; anything else is an opaque 500 so
// internals never leak to clients.
func RespondError(w http.ResponseWriter, err error) {
	var mapper StatusMapper
	if errors.As(err, &mapper) {
		status := mapper.HTTPStatus()
		Problem(w, status, http.StatusText(status), err.Error())
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
