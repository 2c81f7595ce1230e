package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/fitbaus/fitbaus/errors"
)

// handleError maps an error onto an HTTP status using the sentinel errors
// from the errors package and writes the JSON error body. Unrecognized
// errors become a 500 and are logged with the given context string.
func handleError(w http.ResponseWriter, log *zap.SugaredLogger, err error, context string) {
	switch {
	case errors.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.IsInvalidRequestError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrJobNotCancellable):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrProfileExists):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrInvalidProfileName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Errorw(context, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeWrappedError logs the underlying error and writes a stable
// operator-facing message instead of the raw error text.
func writeWrappedError(w http.ResponseWriter, log *zap.SugaredLogger, err error, message string, status int) {
	log.Errorw(message, "error", err)
	writeError(w, status, message)
}
