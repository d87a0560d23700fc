// Package httpx provides JSON response utilities. Errors are rendered as
// RFC7807 problem details, except validation failures which use a field
// error envelope.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ValidationEnvelope is the 422 response body for rejected input.
type ValidationEnvelope struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// Unprocessable sends the 422 validation envelope.
func Unprocessable(w http.ResponseWriter, message string, fieldErrors map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = map[string][]string{}
	}
	JSON(w, http.StatusUnprocessableEntity, ValidationEnvelope{Message: message, Errors: fieldErrors})
}

// ValidatorProblem renders validator.v10 failures as the 422 envelope. Other
// errors become a generic 400.
func ValidatorProblem(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fe.Tag())
	}
	Unprocessable(w, "validation failed", fields)
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
