package httpkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperr "cardpress/internal/pkg/errors"
)

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// DefaultMaxBody bounds JSON request bodies.
const DefaultMaxBody = 4 << 20

// DecodeJSON decodes a single JSON value from the request body, rejecting
// unknown fields and trailing data. Failures come back as BAD_REQUEST errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, DefaultMaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.New(apperr.CodeTooLarge, "request body too large")
		}
		return apperr.WrapWithCode(err, apperr.CodeBadRequest, "", fmt.Sprintf("invalid JSON body: %v", err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return apperr.BadRequest("invalid JSON body: trailing data")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	WriteJSON(w, status, ErrorEnvelope{Error: ErrorBody{Code: code, Message: msg, Details: details}})
}

// WriteError maps err to its HTTP status and envelope. Uncoded errors are
// reported as a generic internal error.
func WriteError(w http.ResponseWriter, err error) {
	var details map[string]any
	if !apperr.IsCode(err, apperr.CodeInternal) {
		details = apperr.GetFields(err)
	}
	WriteErr(w, apperr.GetHTTPStatus(err), string(apperr.GetCode(err)), apperr.PublicMessage(err), details)
}
