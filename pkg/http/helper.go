package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "studyreg/pkg/errors"
)

// DecodeJSON reads a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.New(apperrors.CodeInvalidInput, "Request body too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			return apperrors.InvalidInput("Request body is empty")
		default:
			return apperrors.InvalidInput("Invalid request body")
		}
	}
	if dec.More() {
		return apperrors.InvalidInput("Request body must contain a single JSON object")
	}
	return nil
}
