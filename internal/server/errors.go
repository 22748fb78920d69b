package server

import (
	"errors"
	"net/http"

	"github.com/npezzotti/go-chatrooms/internal/database"
)

var (
	// ErrValidation marks an event rejected because a required field was
	// missing or empty.
	ErrValidation = errors.New("validation error")
	// ErrTransportClosed is returned by Connection.Send when the peer can no
	// longer receive.
	ErrTransportClosed = errors.New("transport closed")
)

// statusCode maps an error from the taxonomy to the code carried in error
// payloads. Anything unrecognised is a store failure.
func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrDuplicateName):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
